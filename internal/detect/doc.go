// Package detect finds capture hardware on the machine and the local
// network.
//
// Each probe strategy implements Detector and runs independently; the
// device manager fans detectors out concurrently, merges their results,
// and keeps the highest-confidence candidate per connection string.
//
// # Confidence
//
// Detectors score each candidate 1-100 by how sure they are the address
// hosts compatible hardware:
//
//   - exact USB VID:PID matches score in the 90s
//   - generic USB-serial bridge chips (FTDI, CP210x, CH340) score 60,
//     since anything could sit behind them
//   - bare serial ports score 30
//   - network endpoints that accept a TCP connection on a capture port
//     score 80
//   - devices reported by the vendor scan utility score 95
//   - devices remembered from previous sessions score 40 until a live
//     probe confirms them
//
// Scores are tunable through configuration; the values above are the
// defaults.
package detect
