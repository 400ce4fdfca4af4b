// Package main provides localization for the pixelvideo CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Playback": "再生",
		"Decoder":  "デコーダー",
		"Output":   "出力先",
		"RTP":      "RTP",
		"Logging":  "ログ",

		// Root command
		"Decode the video track of an MP4 file and loop it onto a surface":                                                           "MP4ファイルの映像トラックをデコードしてサーフェスにループ再生",
		"pixelvideo pumps samples from an MP4 file through a decoder and releases frames to image files, an RTP stream or nowhere.": "pixelvideoはMP4ファイルのサンプルをデコーダーに送り、フレームを画像ファイルやRTPストリームに出力します。",

		// Play command
		"Loop the video track of an MP4 file": "MP4ファイルの映像トラックをループ再生",
		"Decode the first video track of an MP4 file and release its frames to the configured surfaces until the loop count is reached or the process is interrupted.": "MP4ファイルの最初の映像トラックをデコードし、ループ回数に達するか中断されるまで設定されたサーフェスにフレームを出力します。",

		// Probe command
		"List the tracks of an MP4 file":                                         "MP4ファイルのトラックを一覧表示",
		"Print every track of an MP4 file and the video track play would select.": "MP4ファイルの全トラックと、playが選択する映像トラックを表示します。",
		"%s: %d tracks":                     "%s: %d トラック",
		"Video track: #%d (%s), %d samples": "映像トラック: #%d (%s)、%d サンプル",
		"No playable video track":           "再生可能な映像トラックがありません",

		// Version command
		"Show version information": "バージョン情報を表示",
		"pixelvideo version %s":    "pixelvideo バージョン %s",

		// Config
		"YAML configuration file": "YAML設定ファイル",

		// Playback flags
		"Passes over the track before stopping (0 = forever)": "停止するまでのループ回数（0 = 無制限）",
		"End-of-stream policy (rewind, drain)":                "ストリーム終端ポリシー（rewind, drain）",
		"Frame release mode (immediate, timestamp)":           "フレーム出力モード（immediate, timestamp）",
		"Stop after this long (0 = no limit)":                 "この時間が経過したら停止（0 = 無制限）",

		// Decoder flags
		"Decoder backend (auto, ffmpeg, passthrough)": "デコーダーのバックエンド（auto, ffmpeg, passthrough）",
		"Path to the ffmpeg binary":                   "ffmpegバイナリのパス",

		// Output flags
		"Directory to write drawn frames to":         "描画したフレームの出力ディレクトリ",
		"Image format of drawn frames (jpg, png)":    "描画したフレームの画像形式（jpg, png）",
		"JPEG quality (0-100)":                       "JPEG品質（0-100）",
		"Surface width (default: video width)":       "サーフェスの幅（デフォルト: 動画の幅）",
		"Surface height (default: video height)":     "サーフェスの高さ（デフォルト: 動画の高さ）",
		"Draw ticks per second":                      "1秒あたりの描画回数",
		"Draw the presentation time over each frame": "各フレームに表示時刻を描画",
		"Letterbox color (hex, e.g., #000000)":       "余白の色（16進数、例: #000000）",
		"TrueType font for the overlay":              "オーバーレイ用のTrueTypeフォント",

		// RTP flags
		"Stream access units to this UDP address (host:port)": "アクセスユニットを送信するUDPアドレス（host:port）",
		"RTP payload type (0-127)":                            "RTPペイロードタイプ（0-127）",
		"Maximum RTP packet size in bytes":                    "RTPパケットの最大サイズ（バイト）",
		"RTP synchronization source":                          "RTP同期ソース（SSRC）",

		// Summary flag
		"Write a Markdown playback summary to this path": "Markdown形式の再生サマリーの出力先",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "ログ出力をすべて抑制",

		// Errors
		"Error: %v":               "エラー: %v",
		"an MP4 file is required": "MP4ファイルを指定してください",

		// Summary report
		"Playback Summary": "再生サマリー",
		"Source":           "ソース",
		"Item":             "項目",
		"Value":            "値",
		"File":             "ファイル",
		"Tracks":           "トラック数",
		"Size":             "サイズ",
		"Duration":         "長さ",
		"Video Track":      "映像トラック",
		"Track":            "トラック",
		"Color":            "色情報",
		"Settings":         "設定",
		"End of Stream":    "ストリーム終端",
		"Render Mode":      "出力モード",
		"Forever":          "無制限",
		"Loops":            "ループ回数",
		"State":            "状態",
		"Elapsed":          "経過時間",
		"Loops Completed":  "完了したループ",
		"Samples Queued":   "投入サンプル数",
		"Frames Rendered":  "出力フレーム数",
		"Frames Dropped":   "破棄フレーム数",
		"Frames Written":   "書き出しフレーム数",
		"Format Changes":   "フォーマット変更",
		"Errors":           "エラー数",
		"Last Error":       "最後のエラー",
		"Average FPS":      "平均FPS",
		"Generated at":     "生成日時",
	})
}
