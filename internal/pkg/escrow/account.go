// Package escrow derives escrow accounts and computes payouts.
package escrow

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

const accountSeed = "game_escrow"

// DeriveAccount returns the escrow account owned by a game. The account is a
// pure function of the game type and id, so two games can never share one.
func DeriveAccount(gameType string, gameId string) string {
	h := sha3.New256()
	h.Write([]byte(accountSeed))
	h.Write([]byte{0})
	h.Write([]byte(gameType))
	h.Write([]byte{0})
	h.Write([]byte(gameId))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyAccount reports whether claimed is the escrow account of the game.
func VerifyAccount(gameType string, gameId string, claimed string) bool {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(claimed), "0x"))
	expected := DeriveAccount(gameType, gameId)
	return subtle.ConstantTimeCompare([]byte(normalized), []byte(expected)) == 1
}
