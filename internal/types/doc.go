// Package types holds the JSON messages exchanged over /ws.
//
// Client -> Server
//
//	JoinMatch:    matchId, identity
//	SubmitRoster: matchId, identity, roster: Fighter[]
//	SubmitMove:   matchId, identity, kind: "attack", moveIndex
//	SubmitMove:   matchId, identity, kind: "switch", rosterIndex, free
//	Chat:         matchId, identity, text
//
// identity may be omitted; when present it must equal the identity the
// connection authenticated as.
//
// Server -> Client
//
//	SeatAssigned:         side, phase, options, rosters (reconnect only)
//	OpponentJoined:       side, phase
//	MatchFull:            reason
//	BattleStart:          rosters
//	WaitingOnOpponent:    pendingSide
//	TurnOutcome:          turn, actions, log, rosters, freeSwitch, phase
//	MatchOver:            side, winner, reason, rosters
//	MatchAborted:         reason
//	OpponentDisconnected: side
//	OpponentLeft:         side, phase (seat released before the battle)
//	Chat:                 side, from, text
//	Ack:                  (SubmitRoster and SubmitMove accepted)
//	Error:                code, error
//
// Error codes: bad_request, unauthenticated, match_full, not_found, invalid_roster,
// not_team_selection, not_your_turn_phase, awaiting_switch, active_fainted,
// invalid_move, invalid_switch, duplicate_submission, unknown_seat, seat_connected,
// reconnect_expired, match_over, match_closed, internal.
package types
