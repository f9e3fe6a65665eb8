// Package auth implements the Auth Verifier: the stateless HMAC
// challenge-response protocol that gates reads of encrypted files, and
// the separate constant-time owner-token check used for mutation
// endpoints. It follows the same shape as thatique-awan/verr-wrapped
// components elsewhere in this module -- a small portable type backed
// by a kvstore.Store, returning *verr.Error on failure -- but has no
// direct teacher analogue since the source project has no per-record
// challenge-response primitive; the HMAC construction itself is
// grounded in fileblob/urlsigner.go's use of crypto/hmac+sha256.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/thatique/sendcore/kvstore"
	"github.com/thatique/sendcore/internal/verr"
)

// Scheme is the auth-scheme token used in the Authorization and
// WWW-Authenticate headers: "send-v1 <value>".
const Scheme = "send-v1"

// NonceSize is the size, in bytes, of a minted challenge nonce (128
// bits).
const NonceSize = 16

// Verifier implements the nonce challenge-response protocol against a
// Metadata Store Adapter.
type Verifier struct {
	store kvstore.Store
}

// New returns a Verifier backed by store.
func New(store kvstore.Store) *Verifier {
	return &Verifier{store: store}
}

// NewNonce mints a fresh random nonce, base64-encoded (standard
// encoding, which is what newly-minted challenges use; Verify accepts
// either standard or URL-safe encoding from the client).
func NewNonce() (string, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Challenge mints a new nonce for id, persists it, and returns it. Call
// this whenever a protected endpoint is about to respond -- on both
// the success and failure path -- so the caller can set
// WWW-Authenticate to the value returned here.
func (v *Verifier) Challenge(ctx context.Context, id string) (string, error) {
	nonce, err := NewNonce()
	if err != nil {
		return "", verr.New(verr.Internal, err, 2, "auth: mint nonce")
	}
	if err := v.store.SetFields(ctx, id, map[string]string{"nonce": nonce}); err != nil {
		return "", err
	}
	return nonce, nil
}

// Verify checks sig (the base64 value from an incoming Authorization:
// send-v1 <sig> header) against the authKey and nonce currently stored
// for id. It does NOT rotate the nonce -- callers must call Challenge
// unconditionally afterward, regardless of the outcome here.
//
// Verify returns *verr.Error with code Unauthenticated on any
// mismatch, missing record, or missing auth/nonce fields (an
// unencrypted or still-pending record has no auth key to check
// against).
func (v *Verifier) Verify(ctx context.Context, id, sig string) error {
	authKey, ok, err := v.store.GetField(ctx, id, "auth")
	if err != nil {
		return err
	}
	if !ok || authKey == "" || authKey == "unencrypted" {
		return verr.Newf(verr.Unauthenticated, nil, "auth: record %s has no authentication key", id)
	}
	nonce, ok, err := v.store.GetField(ctx, id, "nonce")
	if err != nil {
		return err
	}
	if !ok || nonce == "" {
		return verr.Newf(verr.Unauthenticated, nil, "auth: record %s has no current challenge", id)
	}
	key, err := decodeKey(authKey)
	if err != nil {
		return verr.New(verr.Unauthenticated, err, 2, "auth: stored key is malformed")
	}
	expected := sign(key, nonce)
	given, err := decodeKey(sig)
	if err != nil {
		return verr.New(verr.Unauthenticated, err, 2, "auth: signature is malformed")
	}
	if !hmac.Equal(given, expected) {
		return verr.Newf(verr.Unauthenticated, nil, "auth: signature mismatch")
	}
	return nil
}

func sign(key []byte, nonce string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(nonce))
	return mac.Sum(nil)
}

// decodeKey accepts either standard or URL-safe base64, with or
// without padding.
func decodeKey(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// CheckOwner performs the constant-time owner-token comparison used by
// the mutation endpoints (/delete, /params, /info, /password). It is
// deliberately independent of Verify/Challenge: no nonce is involved.
func CheckOwner(stored, given string) bool {
	if stored == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
