package service

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

const prefixNameMaxLen = 16
const prefixCutSuffix = "..."

// LogPrefixer implements io.Writer and adds dataset name prefix to each line of the run log
type LogPrefixer struct {
	writer io.Writer
	prefix []byte
}

// NewLogPrefixer makes prefixer writing "{name} line" for every line
func NewLogPrefixer(writer io.Writer, name string) *LogPrefixer {
	return &LogPrefixer{writer: writer, prefix: prefixFor(name)}
}

func (p *LogPrefixer) Write(data []byte) (int, error) {
	reader := bufio.NewReader(bytes.NewReader(data))
	var written int
	for {
		line, err := reader.ReadBytes('\n')
		// a partial last line comes together with io.EOF
		if err != nil && err != io.EOF {
			return written, err
		}
		if len(line) > 0 {
			if _, werr := p.writer.Write(p.prefix); werr != nil {
				return written, werr
			}
			n, werr := p.writer.Write(line)
			written += n
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
	}
}

// prefixFor cuts name to prefixNameMaxLen runes, so multibyte names are never split inside a character
func prefixFor(name string) []byte {
	if runes := []rune(name); len(runes) > prefixNameMaxLen {
		name = string(runes[:prefixNameMaxLen]) + prefixCutSuffix
	}
	return []byte(fmt.Sprintf("{%s} ", name))
}
