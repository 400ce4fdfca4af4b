package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session level messages (info)
		"Decoding %s (%dx%d), end-of-stream policy %s": "%s (%dx%d) をデコード中、ストリーム終端ポリシー %s",
		"Playback finished":                            "再生が終了しました",
		"Played %d frames in %d loops":                 "%d フレームを %d ループで再生しました",
		"Stopped after %d loops":                       "%d ループ後に停止しました",
		"Interrupted, shutting down...":                "中断されました。シャットダウン中...",
		"Wrote summary to %s":                          "サマリーを %s に書き出しました",
		"Failed to write summary: %v":                  "サマリーの書き出しに失敗しました: %v",

		// Source component
		"Opened source with %d tracks":       "%d トラックのソースを開きました",
		"Selected track %d (%s), %d samples": "トラック %d (%s) を選択しました (%d サンプル)",
		"Selected video track %d: %s":        "映像トラック %d を選択しました: %s",
		"Closed source":                      "ソースを閉じました",
		"Detected %s":                        "%s を検出しました",

		// Pump component
		"Completed pass %d":                   "パス %d が完了しました",
		"Decoder drained, starting next pass": "デコーダーを排出しました。次のパスを開始します",
		"Queued final end of stream":          "最後のストリーム終端をキューに入れました",
		"Dropped frame at %d us: %v":          "%d us のフレームを破棄しました: %v",
		"Decoder error: %v":                   "デコーダーエラー: %v",
		"Output format changed: %dx%d":        "出力フォーマットが変更されました: %dx%d",
		"color-standard: %s":                  "色規格: %s",
		"color-range: %s":                     "色範囲: %s",
		"color-transfer: %s":                  "伝達特性: %s",
		"color-format: %s":                    "色フォーマット: %s",

		// Decoder component
		"Using %s backend for %s":                        "%s バックエンドで %s をデコードします",
		"Configured %s decoder: %s":                      "%s デコーダーを設定しました: %s",
		"Started %s decoder":                             "%s デコーダーを開始しました",
		"Flushed %s decoder":                             "%s デコーダーをフラッシュしました",
		"Stopped %s decoder":                             "%s デコーダーを停止しました",
		"Queued input %d: %d bytes at %d us (flags %d)":  "入力 %d をキューに入れました: %d バイト、%d us (フラグ %d)",
		"Release of output buffer %d failed: %v":         "出力バッファ %d の解放に失敗しました: %v",
		"Surface rejected frame at %d us: %v":            "サーフェスが %d us のフレームを拒否しました: %v",

		// Surfaces
		"Surface format %dx%d (%s, %s range)":   "サーフェスのフォーマット %dx%d (%s, %s レンジ)",
		"Wrote %s (%d us)":                      "%s を書き出しました (%d us)",
		"Streaming %dx%d %s as payload type %d": "%dx%d の %s をペイロードタイプ %d で送信中",
	})
}
