package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

func TestReadCSV_StripsBOMAndSniffsSemicolon(t *testing.T) {
	in := "\xEF\xBB\xBFCargo;Responde al Cargo;Nivel Jerárquico;Indicador;Peso\n" +
		"CEO;;CEO;Ventas;100%\n" +
		"Gerente;CEO;Gerente;\"Margen; bruto\";0.5\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, "Cargo", tbl.Header[0])
	require.Len(t, tbl.Records, 2)

	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, "Margen; bruto", rows[1].Indicator)
	require.Equal(t, 50, rows[1].Weight)
	require.Equal(t, 3, rows[1].Line)
}

func TestReadCSV_MissingHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.EqualError(t, err, "missing header")
}

func TestReadCSV_MissingRequiredColumns(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("Cargo,Indicador\nCEO,Ventas\n"))
	require.NoError(t, err)
	_, err = tbl.Rows()
	var structure *roster.ImportStructureError
	require.ErrorAs(t, err, &structure)
	require.Equal(t, []string{"Responde al Cargo", "Nivel Jerárquico"}, structure.Missing)
}

func TestXLSX_WriteThenRead(t *testing.T) {
	header := roster.ExportHeader
	record := make([]string, len(header))
	record[0] = "Revenue"
	record[9] = "CEO"
	record[11] = "CEO"
	record[15] = "100"

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "", header, [][]string{record}))

	tbl, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	require.Equal(t, header, tbl.Header)
	require.Len(t, tbl.Records, 1)

	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, "Revenue", rows[0].Indicator)
	require.Equal(t, "CEO", rows[0].Position)
	require.Equal(t, 100, rows[0].Weight)

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), "Missing")
	require.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, []string{"Indicator", "Weight"}, [][]string{{"Margen, bruto", "40"}}))
	require.Equal(t, "Indicator,Weight\n\"Margen, bruto\",40\n", buf.String())
}

func TestReadFile_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.CSV")
	require.NoError(t, os.WriteFile(path, []byte("Cargo,Responde al Cargo,Nivel,Indicador\nCEO,,CEO,Ventas\n"), 0o600))

	tbl, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)

	_, err = ReadFile(filepath.Join(dir, "roster.ods"))
	require.ErrorContains(t, err, "unsupported format")

	f, err := ParseFormat(".XLSX")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, f)
}
