// Package agreerandom lets two or more parties agree on a random value none
// of them controls.
//
//	// Two-party example
//	random, err := agreerandom.AgreeRandom(ctx, job2P, 256)
//
//	// Multi-party example
//	random, err := agreerandom.MultiAgreeRandom(ctx, jobMP, 256)
//
// The result is bitLen bits packed big-endian into (bitLen+7)/8 bytes. Every
// party of the job obtains the same value.
package agreerandom
