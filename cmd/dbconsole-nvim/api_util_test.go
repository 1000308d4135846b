package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neovim/go-client/nvim"
)

func Test_passwordPrompt(t *testing.T) {
	api, _ := initTestEnv(t, nil)
	defer api.Close()

	prompter := passwordPrompt(api)

	go func() {
		if err := api.FeedKeys("postgres\nhunter2\n", "t", false); err != nil {
			t.Error(err)
		}
	}()

	answers, err := prompter("", "", []string{"user: ", "password: "}, []bool{true, false})
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if diff := cmp.Diff([]string{"postgres", "hunter2"}, answers); diff != "" {
		t.Errorf("unexpected answers. diff:\n%s\n", diff)
	}
}

// visibleBuffers maps each window of the current tabpage to its buffer.
func visibleBuffers(t *testing.T, api *nvim.Nvim) map[nvim.Window]nvim.Buffer {
	t.Helper()

	tab, err := api.CurrentTabpage()
	if err != nil {
		t.Fatal(err)
	}

	wins, err := api.TabpageWindows(tab)
	if err != nil {
		t.Fatal(err)
	}

	visible := make(map[nvim.Window]nvim.Buffer, len(wins))
	for _, win := range wins {
		buf, err := api.WindowBuffer(win)
		if err != nil {
			t.Fatal(err)
		}
		visible[win] = buf
	}
	return visible
}

func Test_openSplitWindow(t *testing.T) {
	tests := []struct {
		name     string
		vertical bool
		existing bool
		kind     scratchKind
	}{
		{name: "vertical_new", vertical: true, kind: schemaScratch},
		{name: "horizontal_new", vertical: false, kind: resultScratch},
		{name: "vertical_existing", vertical: true, existing: true, kind: schemaScratch},
		{name: "horizontal_existing", vertical: false, existing: true, kind: csvScratch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := initTestEnv(t, nil)
			defer api.Close()

			userWin, err := api.CurrentWindow()
			if err != nil {
				t.Fatal(err)
			}

			var reuse nvim.Buffer
			if tt.existing {
				if reuse, err = api.CreateBuffer(false, true); err != nil {
					t.Fatal(err)
				}
			}

			buf, win, err := openSplitWindow(api, tt.vertical, reuse, tt.kind)
			if err != nil {
				t.Fatal(err)
			}

			if tt.existing && buf != reuse {
				t.Errorf("expected window to show buffer %d, but it shows %d", reuse, buf)
			}

			if b, ok := visibleBuffers(t, api)[win]; !ok {
				t.Error("expected new window to be visible")
			} else if b != buf {
				t.Errorf("expected buffer %d in the new window, but found %d", buf, b)
			}

			var buftype string
			if err := api.BufferOption(buf, "buftype", &buftype); err != nil {
				t.Fatal(err)
			}
			if buftype != "nofile" {
				t.Errorf("expected a scratch buffer, but buftype was '%s'", buftype)
			}

			var filetype string
			if err := api.BufferOption(buf, "filetype", &filetype); err != nil {
				t.Fatal(err)
			}
			if filetype != string(tt.kind) {
				t.Errorf("expected filetype '%s', but was '%s'", tt.kind, filetype)
			}

			currWin, err := api.CurrentWindow()
			if err != nil {
				t.Fatal(err)
			}
			if currWin != userWin {
				t.Error("expected focus to return to the user's window")
			}
		})
	}
}

func Test_writeScratch(t *testing.T) {
	api, _ := initTestEnv(t, nil)
	defer api.Close()

	buf, _, err := openSplitWindow(api, false, 0, resultScratch)
	if err != nil {
		t.Fatal(err)
	}
	if err := api.SetBufferOption(buf, "modifiable", false); err != nil {
		t.Fatal(err)
	}

	for _, lines := range [][]string{
		{"id | name", "1  | alice", "2  | bob"},
		{"(0 rows)"},
	} {
		if err := writeScratch(api, buf, lines); err != nil {
			t.Fatal(err)
		}

		actual, err := api.BufferLines(buf, 0, -1, false)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(lines, toStringLines(actual)); diff != "" {
			t.Errorf("unexpected buffer contents. diff:\n%s\n", diff)
		}

		var modifiable bool
		if err := api.BufferOption(buf, "modifiable", &modifiable); err != nil {
			t.Fatal(err)
		}
		if modifiable {
			t.Error("expected buffer to be left unmodifiable")
		}
	}
}

func toStringLines(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func Test_bufferWindow(t *testing.T) {
	t.Run("visible", func(t *testing.T) {
		api, _ := initTestEnv(t, nil)
		defer api.Close()

		buf, win, err := openSplitWindow(api, true, 0, resultScratch)
		if err != nil {
			t.Fatal(err)
		}

		actualWin, visible, err := bufferWindow(api, buf)
		if err != nil {
			t.Fatal(err)
		}

		if !visible {
			t.Error("expected buffer to be visible")
		}
		if actualWin != win {
			t.Errorf("expected buffer to be visible in window %d, but found %d", win, actualWin)
		}
	})

	t.Run("hidden", func(t *testing.T) {
		api, _ := initTestEnv(t, nil)
		defer api.Close()

		buf, err := api.CreateBuffer(false, true)
		if err != nil {
			t.Fatal(err)
		}

		win, visible, err := bufferWindow(api, buf)
		if err != nil {
			t.Fatal(err)
		}

		if visible {
			t.Error("expected buffer to not be visible")
		}
		if win != 0 {
			t.Error("expected no window for a hidden buffer")
		}
	})

	t.Run("other_tabpage", func(t *testing.T) {
		api, _ := initTestEnv(t, nil)
		defer api.Close()

		buf, _, err := openSplitWindow(api, false, 0, resultScratch)
		if err != nil {
			t.Fatal(err)
		}

		if err := api.Command("tabnew"); err != nil {
			t.Fatal(err)
		}

		_, visible, err := bufferWindow(api, buf)
		if err != nil {
			t.Fatal(err)
		}

		if visible {
			t.Error("expected buffer on another tabpage to not count as visible")
		}
	})
}
