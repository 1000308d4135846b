package main

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/neovim/go-client/nvim"
	"golang.org/x/crypto/ssh"
)

func passwordPrompt(api *nvim.Nvim) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, echos []bool) (answers []string, err error) {
		answers = make([]string, len(questions))
		batch := api.NewBatch()

		var outOfMem int
		batch.Call("inputsave", &outOfMem)
		for i, q := range questions {
			if i < len(echos) && echos[i] {
				batch.Call("input", &answers[i], q)
			} else {
				batch.Call("inputsecret", &answers[i], q)
			}
		}
		batch.Call("inputrestore", &outOfMem)

		if err := batch.Execute(); err != nil {
			return nil, err
		}
		if outOfMem != 0 {
			return nil, errors.New("ran out of memory")
		}
		return answers, nil
	}
}

// scratchKind is what a scratch window shows. It is set as the buffer's
// filetype, so users can hook syntax and mappings onto it.
type scratchKind string

const (
	schemaScratch scratchKind = "dbconsole-schema"
	resultScratch scratchKind = "dbconsole-result"
	csvScratch    scratchKind = "csv"
)

// openSplitWindow opens a split showing a scratch buffer of the given kind,
// since there is no RPC function for opening a non-floating window.
// If buf is non-zero it is reused, otherwise a new buffer is created.
// Focus stays with the user's window.
func openSplitWindow(api *nvim.Nvim, vertical bool, buf nvim.Buffer, kind scratchKind) (nvim.Buffer, nvim.Window, error) {
	var (
		userWin nvim.Window
		win     nvim.Window
	)

	cmd := "new"
	if buf != 0 {
		cmd = "sbuffer " + strconv.Itoa(int(buf))
	}
	if vertical {
		cmd = "vertical " + cmd
	}

	batch := api.NewBatch()
	batch.CurrentWindow(&userWin)
	batch.Command(cmd)
	batch.CurrentBuffer(&buf)
	batch.CurrentWindow(&win)
	if err := batch.Execute(); err != nil {
		return 0, 0, err
	}

	batch = api.NewBatch()
	batch.SetBufferOption(buf, "buftype", "nofile")
	batch.SetBufferOption(buf, "bufhidden", "hide")
	batch.SetBufferOption(buf, "swapfile", false)
	batch.SetBufferOption(buf, "buflisted", false)
	batch.SetBufferOption(buf, "filetype", string(kind))
	// the user's window still shows their buffer, so focusing it is enough
	batch.SetCurrentWindow(userWin)

	err := batch.Execute()
	return buf, win, err
}

// bufferWindow finds a window on the current tabpage showing buffer.
func bufferWindow(api *nvim.Nvim, buffer nvim.Buffer) (nvim.Window, bool, error) {
	var (
		ids []int
		tab nvim.Tabpage
	)

	batch := api.NewBatch()
	batch.Call("win_findbuf", &ids, int(buffer))
	batch.CurrentTabpage(&tab)
	if err := batch.Execute(); err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}

	tabs := make([]nvim.Tabpage, len(ids))
	batch = api.NewBatch()
	for i, id := range ids {
		batch.WindowTabpage(nvim.Window(id), &tabs[i])
	}
	if err := batch.Execute(); err != nil {
		return 0, false, err
	}

	for i, id := range ids {
		if tabs[i] == tab {
			return nvim.Window(id), true, nil
		}
	}
	return 0, false, nil
}

// writeScratch replaces the contents of a scratch buffer that is kept
// unmodifiable between writes.
func writeScratch(api *nvim.Nvim, buf nvim.Buffer, lines []string) error {
	batch := api.NewBatch()
	batch.SetBufferOption(buf, "modifiable", true)
	batch.SetBufferLines(buf, 0, -1, false, toByteLines(lines))
	batch.SetBufferOption(buf, "modifiable", false)
	return batch.Execute()
}

func joinLines(lines [][]byte) string {
	return string(bytes.Join(lines, []byte{'\n'}))
}

func toByteLines(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}

func splitLines(text string) [][]byte {
	return toByteLines(strings.Split(text, "\n"))
}
