package parser

import "testing"

func TestParseValid(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		wantTimeText string
		wantIso      string
		wantType     string
		wantAuthor   string
		wantTheme    string
		wantSeq      int
	}{
		{
			name:         "canonical example",
			fileName:     "2025-12-07 16.29.19-视频-张三-夏天的第一场雨_3.mp4",
			wantTimeText: "2025-12-07 16.29.19",
			wantIso:      "2025-12-07T16:29:19",
			wantType:     "视频",
			wantAuthor:   "张三",
			wantTheme:    "夏天的第一场雨",
			wantSeq:      3,
		},
		{
			name:         "simple",
			fileName:     "2024-03-12 12.30.55-clip-janedoe-sunset_1.mp4",
			wantTimeText: "2024-03-12 12.30.55",
			wantIso:      "2024-03-12T12:30:55",
			wantType:     "clip",
			wantAuthor:   "janedoe",
			wantTheme:    "sunset",
			wantSeq:      1,
		},
		{
			name:         "hyphenated theme",
			fileName:     "2024-03-12 12.30.55-clip-janedoe-golden-hour_12.mp4",
			wantTimeText: "2024-03-12 12.30.55",
			wantIso:      "2024-03-12T12:30:55",
			wantType:     "clip",
			wantAuthor:   "janedoe",
			wantTheme:    "golden-hour",
			wantSeq:      12,
		},
		{
			name:         "empty author is the unknown-publisher bucket",
			fileName:     "2024-03-12 12.30.55-clip--sunset_1.mp4",
			wantTimeText: "2024-03-12 12.30.55",
			wantIso:      "2024-03-12T12:30:55",
			wantType:     "clip",
			wantAuthor:   "",
			wantTheme:    "sunset",
			wantSeq:      1,
		},
		{
			name:         "multi-type declaration",
			fileName:     "2024-03-12 12.30.55-clip+live-janedoe-sunset.mp4",
			wantTimeText: "2024-03-12 12.30.55",
			wantIso:      "2024-03-12T12:30:55",
			wantType:     "clip+live",
			wantAuthor:   "janedoe",
			wantTheme:    "sunset",
			wantSeq:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.fileName)
			if !ok {
				t.Fatalf("Parse(%q) failed to match grammar", tt.fileName)
			}
			if got.TimeText != tt.wantTimeText {
				t.Errorf("TimeText = %q, want %q", got.TimeText, tt.wantTimeText)
			}
			if got.Iso != tt.wantIso {
				t.Errorf("Iso = %q, want %q", got.Iso, tt.wantIso)
			}
			if got.TypeText != tt.wantType {
				t.Errorf("TypeText = %q, want %q", got.TypeText, tt.wantType)
			}
			if got.Author != tt.wantAuthor {
				t.Errorf("Author = %q, want %q", got.Author, tt.wantAuthor)
			}
			if got.Theme != tt.wantTheme {
				t.Errorf("Theme = %q, want %q", got.Theme, tt.wantTheme)
			}
			if got.Seq != tt.wantSeq {
				t.Errorf("Seq = %d, want %d", got.Seq, tt.wantSeq)
			}
			if got.TimestampMs == 0 {
				t.Errorf("TimestampMs = 0, want nonzero for well-formed timestamp")
			}
		})
	}
}

func TestParseInvalidNeverPanics(t *testing.T) {
	adversarial := []string{
		"",
		".",
		"..",
		"no-grammar-here.mp4",
		"/etc/passwd",
		"日本語のファイル名.mp4",
		"----.mp4",
		"2024-03-12 12.30.55-type-author-noseq.mp4", // valid, should not panic either way
		"2024-03-12 12.30.55-type-author-_1.mp4",
		"short-type-author-theme_1.mp4",
		"2024-03-12X12.30.55-type-author-theme_1.mp4", // wrong separator at offset 19
		"2024-99-99 99.99.99-type-author-theme_1.mp4", // not a valid calendar time
		strings0x00(),
	}

	for _, name := range adversarial {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Parse(%q) panicked: %v", name, r)
				}
			}()
			if _, ok := Parse(name); ok {
				t.Logf("Parse(%q) unexpectedly matched the grammar", name)
			}
		}()
	}
}

func strings0x00() string {
	return "2024-03-12 12.30.55-type-author-theme_\x00.mp4"
}

func TestParseRejectsMissingSeparatorAtOffset19(t *testing.T) {
	if _, ok := Parse("2024-03-12 12.30.55Xclip-author-theme_1.mp4"); ok {
		t.Fatal("expected grammar mismatch when offset 19 is not '-'")
	}
}

func TestParseRejectsEmptyType(t *testing.T) {
	if _, ok := Parse("2024-03-12 12.30.55--author-theme_1.mp4"); ok {
		t.Fatal("expected grammar mismatch for empty type")
	}
}

func TestParseRejectsEmptyTheme(t *testing.T) {
	if _, ok := Parse("2024-03-12 12.30.55-clip-author-_1.mp4"); ok {
		t.Fatal("expected grammar mismatch for empty theme")
	}
}

func TestSplitThemeSeqTrailingUnderscore(t *testing.T) {
	theme, seq := splitThemeSeq("my_cool_theme_7")
	if theme != "my_cool_theme" || seq != 7 {
		t.Errorf("got theme=%q seq=%d, want theme=%q seq=7", theme, seq, "my_cool_theme")
	}
}

func TestSplitThemeSeqNoTrailingDigits(t *testing.T) {
	theme, seq := splitThemeSeq("my_cool_theme")
	if theme != "my_cool_theme" || seq != 0 {
		t.Errorf("got theme=%q seq=%d, want theme unchanged and seq=0", theme, seq)
	}
}

func TestParseInvalidCalendarDateReturnsFalse(t *testing.T) {
	p, ok := Parse("2024-13-40 99.99.99-clip-author-theme_1.mp4")
	if ok {
		t.Fatalf("expected grammar mismatch for invalid calendar date, got %+v", p)
	}
}
