package artifact_test

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/model"
)

func randomLikeHeader() []byte {
	// Deterministic bytes spread over the whole byte range.
	h := make([]byte, artifact.HeaderSize)
	for i := range h {
		h[i] = byte((i*97 + 131) % 256)
		if h[i] == 0 {
			h[i] = 0xAA
		}
	}
	return h
}

func TestInspect(t *testing.T) {
	tests := map[string]struct {
		header   []byte
		filename string
		exp      model.Classification
	}{
		"An encrypted SQL dump by suffix should be an encrypted database.": {
			header:   []byte("short"),
			filename: "backup.sql.enc",
			exp:      model.Classification{Kind: model.KindDatabase, Encrypted: true},
		},
		"A files archive with a short header should be plain files.": {
			header:   []byte{0x1f, 0x8b, 0x08},
			filename: "files-backup.tar.gz",
			exp:      model.Classification{Kind: model.KindFiles, Encrypted: false},
		},
		"A compressed SQL dump should be a plain database.": {
			header:   append([]byte{0x1f, 0x8b}, bytes.Repeat([]byte{0x42, 0x99}, 30)...),
			filename: "school-2024.sql.gz",
			exp:      model.Classification{Kind: model.KindDatabase, Encrypted: false},
		},
		"A plain text SQL dump should be a plain database.": {
			header:   []byte(strings.Repeat("INSERT INTO students VALUES (1, 'a');\n", 3)),
			filename: "dump.SQL",
			exp:      model.Classification{Kind: model.KindDatabase, Encrypted: false},
		},
		"A zip files archive should be files.": {
			header:   append([]byte{'P', 'K', 0x03, 0x04}, bytes.Repeat([]byte{0x99}, 50)...),
			filename: "uploads-files.zip",
			exp:      model.Classification{Kind: model.KindFiles, Encrypted: false},
		},
		"An unknown name should be a full system backup.": {
			header:   []byte("x"),
			filename: "backup-2024-01-01.bin",
			exp:      model.Classification{Kind: model.KindFullSystem, Encrypted: false},
		},
		"An encryption looking header without suffix should be encrypted.": {
			header:   randomLikeHeader(),
			filename: "backup.tar.gz",
			exp:      model.Classification{Kind: model.KindFullSystem, Encrypted: true},
		},
		"An encryption looking header shorter than the threshold should not be encrypted.": {
			header:   randomLikeHeader()[:artifact.HeaderSize-1],
			filename: "backup.tar.gz",
			exp:      model.Classification{Kind: model.KindFullSystem, Encrypted: false},
		},
		"An enc suffix on an unrecognized format is not enough.": {
			header:   []byte("x"),
			filename: "notes.enc",
			exp:      model.Classification{Kind: model.KindFullSystem, Encrypted: false},
		},
		"Paths should be ignored.": {
			header:   nil,
			filename: "/tmp/files/backup.sql.gz.enc",
			exp:      model.Classification{Kind: model.KindDatabase, Encrypted: true},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := artifact.Inspect(test.header, test.filename)
			assert.Equal(t, test.exp, got)
		})
	}
}

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) { return 0, errors.New("device error") }

func TestInspectReader(t *testing.T) {
	t.Run("Reading should not consume the header.", func(t *testing.T) {
		data := "INSERT INTO fees VALUES (1);\n"
		br := bufio.NewReader(strings.NewReader(data))

		cls, err := artifact.InspectReader(br, "fees.sql")
		require.NoError(t, err)
		assert.Equal(t, model.Classification{Kind: model.KindDatabase}, cls)

		rest := new(bytes.Buffer)
		_, err = rest.ReadFrom(br)
		require.NoError(t, err)
		assert.Equal(t, data, rest.String())
	})

	t.Run("An unreadable header should return a classification error and a conservative classification.", func(t *testing.T) {
		br := bufio.NewReader(failingReader{})

		cls, err := artifact.InspectReader(br, "backup.sql.enc")
		var clsErr *model.ClassificationError
		require.ErrorAs(t, err, &clsErr)
		assert.Equal(t, model.Classification{Kind: model.KindDatabase, Encrypted: true}, cls)
	})
}
