// Package admincli implements the goshield user-management commands.
//
// Every command resolves its target user, asks for confirmation when it
// changes state, calls the matching goShield.Admin operation and prints a
// one-line result. Input and output are injected so commands run unchanged
// against a terminal or a test buffer.
package admincli
