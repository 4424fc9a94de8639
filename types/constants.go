package types

const (
	// BulletinTreeMaxLevels is the maximum number of levels of the bulletin
	// board merkle tree. Keys are ballot trackers.
	BulletinTreeMaxLevels = 128
	// BulletinKeyMaxLen is the maximum length of a bulletin tree key in bytes.
	BulletinKeyMaxLen = BulletinTreeMaxLevels / 8
	// MaxElectionIDLen is the maximum length of an election id.
	MaxElectionIDLen = 128
)
