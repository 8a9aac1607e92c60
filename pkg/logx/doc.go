// Package logx configures remindsync's structured logging.
//
// Components log through logx.Logger, a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - Service.Apply swaps sinks and level at runtime (config hot reload)
package logx
