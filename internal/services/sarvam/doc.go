// Package sarvam talks to the Sarvam AI speech and translation APIs.
//
// One Client backs the Transcriber, Translator and SpeechSynthesizer
// contracts and shares a single request limiter between them, so every
// worker in the process stays under the account's per-minute quota. The
// client makes one attempt per call; retries belong to the stage executor.
package sarvam
