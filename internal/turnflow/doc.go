// Package turnflow is the turn and phase state machine.
//
// A Machine wraps one rule tree and moves immutable game states forward:
// NewGame builds the initial state, ApplyMove resolves a player's move,
// AdvancePhase steps to the next phase or through the end of a turn, and
// AdvanceToDecisionPoint advances until the game ends or a move is possible.
//
// Every operation returns a Step carrying the new state together with the
// trigger log, the duration boundaries crossed and the lasting effects that
// expired. End-of-turn ordering is fixed: phaseExited, turnEnded, card slot
// promotion, lasting effect sweep, turn-order advance, usage reset,
// turnStarted, phaseEntered.
//
// Four turn-order strategies are supported: roundRobin, fixedOrder,
// cardDriven (eligibility per card, coup rounds and free operations) and
// simultaneous (moves are collected from every player and resolved
// together).
package turnflow
