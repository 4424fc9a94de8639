package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// PublicKeysEndpoint returns the RSA signing key and the Paillier ballot key
	PublicKeysEndpoint = "/public-keys"
	// RSAKeyEndpoint and PaillierKeyEndpoint return a single key
	RSAKeyEndpoint      = "/public-keys/rsa"
	PaillierKeyEndpoint = "/public-keys/paillier"

	// ElectionURLParam is the URL parameter of the election id
	ElectionURLParam = "electionId"
	// ElectionsEndpoint is the endpoint to create elections (development only)
	ElectionsEndpoint = "/elections"
	// VoterElectionEndpoint returns the election as seen by a voter
	VoterElectionEndpoint = "/voter/elections/{" + ElectionURLParam + "}"
	// BlindSignEndpoint signs a blinded voting token
	BlindSignEndpoint = "/elections/{" + ElectionURLParam + "}/blind-sign"
	// TallyEndpoint returns the encrypted running tally
	TallyEndpoint = "/elections/{" + ElectionURLParam + "}/tally"
	// CastVoteEndpoint is the endpoint for submitting a ballot
	CastVoteEndpoint = "/cast-vote"
	// ProofEndpoint returns the bulletin board inclusion of a tracker
	ProofEndpoint = "/wbb/{" + ElectionURLParam + "}/proof"
	// TrackerQueryParam is the query parameter of the proof endpoint
	TrackerQueryParam = "tracker"
)
