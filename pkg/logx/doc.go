// Package logx configures the engine's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional host sink (min-level + rate limiting) so warnings can reach
//     the embedding application (for example a devtools console)
package logx
