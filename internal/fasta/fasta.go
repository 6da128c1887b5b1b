package fasta

// Package fasta contains minimal helpers to parse protein FASTA input pasted
// into the app or read from disk. Sequences come back concatenated,
// whitespace-stripped and upper-cased.

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"flyapp/internal/protein"
)

// UnknownID is the identifier given to input that has no header line.
const UnknownID = "Unknown"

// FastaRecord represents a single FASTA record (header and sequence).
type FastaRecord struct {
	Header   string
	Sequence string
}

// ID returns the first token of the header (the accession), or the whole
// header when it has no spaces.
func (r FastaRecord) ID() string {
	if f := strings.Fields(r.Header); len(f) > 0 {
		return f[0]
	}
	return r.Header
}

// ParseFasta reads FASTA records from r and returns a slice of FastaRecord.
// Lines beginning with '>' denote headers; sequence lines are concatenated.
// Sequence lines before the first header are ignored.
func ParseFasta(r io.Reader) []FastaRecord {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var records []FastaRecord
	var current *FastaRecord
	var seq strings.Builder
	flush := func() {
		if current != nil {
			current.Sequence = protein.Normalize(seq.String())
			records = append(records, *current)
		}
		seq.Reset()
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, ">") {
			flush()
			current = &FastaRecord{Header: strings.TrimSpace(line[1:])}
			continue
		}
		if current != nil {
			seq.WriteString(line)
		}
	}
	flush()
	return records
}

// ParseProtein extracts a single protein from text. If the first line is a
// header its text becomes the id and the remaining lines the sequence;
// otherwise every line is sequence and the id is UnknownID.
func ParseProtein(text string) (id, sequence string) {
	text = strings.TrimSpace(text)
	lines := strings.Split(text, "\n")
	if strings.HasPrefix(lines[0], ">") {
		return strings.TrimSpace(lines[0][1:]), protein.Normalize(strings.Join(lines[1:], ""))
	}
	return UnknownID, protein.Normalize(strings.Join(lines, ""))
}

// Format writes one record to w, wrapping the sequence every width residues.
// width <= 0 writes the sequence on one line.
func Format(w io.Writer, header, sequence string, width int) error {
	if _, err := fmt.Fprintf(w, ">%s\n", header); err != nil {
		return err
	}
	if width <= 0 {
		width = len(sequence)
	}
	for i := 0; i < len(sequence); i += width {
		end := min(i+width, len(sequence))
		if _, err := fmt.Fprintln(w, sequence[i:end]); err != nil {
			return err
		}
	}
	return nil
}
