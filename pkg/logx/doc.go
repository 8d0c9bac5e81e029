// Package logx configures standupbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - JSON output usable by hosted log collectors (level mirrored as "severity")
//   - File output JSON-structured
package logx
