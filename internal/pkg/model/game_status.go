package model

type GameStatus string

const (
	GameWaiting   GameStatus = "WAITING"
	GameMatched   GameStatus = "MATCHED"
	GameActive    GameStatus = "ACTIVE"
	GameResolving GameStatus = "RESOLVING"
	GameCompleted GameStatus = "COMPLETED"
	GameCancelled GameStatus = "CANCELLED"
)

// transitions lists every forward move the escrow lifecycle allows.
// Resolving may fall back to the status it was claimed from when a payout
// fails definitively.
var transitions = map[GameStatus][]GameStatus{
	GameWaiting:   {GameMatched, GameCancelled},
	GameMatched:   {GameActive, GameResolving},
	GameActive:    {GameResolving},
	GameResolving: {GameCompleted, GameMatched, GameActive},
}

func (s GameStatus) IsTerminal() bool {
	return s == GameCompleted || s == GameCancelled
}

// IsPayoutEligible reports whether settlement may begin from s.
func (s GameStatus) IsPayoutEligible() bool {
	return s == GameMatched || s == GameActive
}

func (s GameStatus) CanTransitionTo(to GameStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s GameStatus) Valid() bool {
	switch s {
	case GameWaiting, GameMatched, GameActive, GameResolving, GameCompleted, GameCancelled:
		return true
	}
	return false
}
