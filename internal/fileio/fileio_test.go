package fileio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	excelize "github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

func TestReadSheetCSVSemicolon(t *testing.T) {
	data := "\uFEFFid;titre;statut;;titre\n1;Sac à dos;perdu;x;dup\n;;;;\n2;\"Clé; USB\";trouvé;;\n"
	s, err := ReadSheet(strings.NewReader(data), "export.csv", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "titre", "statut", "Column 4", "titre (2)"}, s.Headers)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, "Sac à dos", s.Rows[0]["titre"])
	assert.Equal(t, "dup", s.Rows[0]["titre (2)"])
	assert.Equal(t, "Clé; USB", s.Rows[1]["titre"])
}

func TestReadSheetCSVWindows1252(t *testing.T) {
	raw := "id,titre,lieu\n1,Écouteurs oubliés près de la scène,Scène principale\n2,Téléphone trouvé à l'entrée,Entrée\n"
	enc, err := charmap.Windows1252.NewEncoder().String(raw)
	require.NoError(t, err)

	s, err := ReadSheet(strings.NewReader(enc), "export.csv", 1)
	require.NoError(t, err)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, "Écouteurs oubliés près de la scène", s.Rows[0]["titre"])
}

func TestReadSheetHeaderRow(t *testing.T) {
	data := "Export du registre\nid,titre\n7,badge\n"
	s, err := ReadSheet(strings.NewReader(data), "x.csv", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "titre"}, s.Headers)
	require.Len(t, s.Rows, 1)
	assert.Equal(t, "7", s.Rows[0]["id"])
}

func TestReadSheetXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"id", "title", "status"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{1, "sac noir", "lost"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{2, "gsm", "found"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	s, err := ReadSheet(&buf, "items.XLSX", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "status"}, s.Headers)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, "gsm", s.Rows[1]["title"])
}

func TestReadSheetUnsupported(t *testing.T) {
	_, err := ReadSheet(strings.NewReader(""), "items.pdf", 1)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("a;b;c\n1,5;2;3")))
	assert.Equal(t, ',', sniffDelimiter([]byte(`"a;b",c,d`)))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc")))
	assert.Equal(t, ',', sniffDelimiter(nil))
}
