package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/ballot"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/storage"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// authorityError maps an election authority error to its API error.
func authorityError(err error) Error {
	switch {
	case errors.Is(err, authority.ErrElectionNotFound):
		return ErrElectionNotFound.WithErr(err)
	case errors.Is(err, authority.ErrElectionClosed):
		return ErrElectionClosed.WithErr(err)
	case errors.Is(err, authority.ErrInvalidElection):
		return ErrInvalidElection.WithErr(err)
	case errors.Is(err, authority.ErrKeyMismatch):
		return ErrKeyMismatch
	case errors.Is(err, authority.ErrAlreadyIssued):
		return ErrTokenAlreadyIssued
	case errors.Is(err, authority.ErrInvalidBlindedToken):
		return ErrInvalidBlindedToken
	case errors.Is(err, authority.ErrInvalidVoterSignature):
		return ErrInvalidVoterSignature.WithErr(err)
	case errors.Is(err, authority.ErrNotEligible):
		return ErrVoterNotEligible
	case errors.Is(err, authority.ErrInvalidCredential):
		return ErrInvalidCredential
	case errors.Is(err, authority.ErrTokenAlreadyUsed):
		return ErrTokenAlreadyUsed
	case errors.Is(err, authority.ErrInvalidTracker):
		return ErrMalformedTracker
	case errors.Is(err, authority.ErrTrackerInUse):
		return ErrTrackerAlreadyUsed
	case errors.Is(err, ballot.ErrInvalidBallot), errors.Is(err, ballot.ErrInvalidCandidates):
		return ErrInvalidBallot.WithErr(err)
	case errors.Is(err, storage.ErrNotFound):
		return ErrResourceNotFound
	}
	return ErrGenericInternalServerError.WithErr(err)
}
