// Package export materialises periodic parquet snapshots of karma balances
// and soulbound credential issuance (SPEC_FULL.md §5 "Analytics export"), the
// same CSV/Parquet reconciliation shape every one of the teacher's services
// produces for downstream analytics. Grounded on
// services/otc-gateway/recon/reconciler.go's writeCSV/writeParquet pair.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"srishti/state"
)

// KarmaRow is one row of the karma-balance snapshot.
type KarmaRow struct {
	NodeID string `parquet:"name=node_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name   string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Role   string `parquet:"name=role, type=BYTE_ARRAY, convertedtype=UTF8"`
	Karma  string `parquet:"name=karma, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// CredentialRow is one row of the soulbound-credential issuance snapshot.
type CredentialRow struct {
	NodeID        string `parquet:"name=node_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Issuer        string `parquet:"name=issuer, type=BYTE_ARRAY, convertedtype=UTF8"`
	AchievementID string `parquet:"name=achievement_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title         string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Revocable     bool   `parquet:"name=revocable, type=BOOLEAN"`
	MintedAt      int64  `parquet:"name=minted_at, type=INT64"`
}

// Snapshot lists the CSV and parquet files (one of each per report)
// produced by one export run.
type Snapshot struct {
	KarmaCSVPath         string
	KarmaParquetPath     string
	CredentialCSVPath    string
	CredentialParquetPath string
	KarmaRows            int
	CredentialRows        int
}

// Run derives karma and soulbound-credential rows from st and writes both a
// CSV and a parquet file for each into outputDir, named by the snapshot
// timestamp. Deterministic row order (sorted by node id) so repeated runs
// over identical state produce byte-identical CSVs.
func Run(st *state.State, outputDir string, at time.Time) (Snapshot, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("export: ensure output dir: %w", err)
	}
	stamp := at.UTC().Format("20060102T150405Z")

	karmaRows := karmaRows(st)
	credentialRows := credentialRows(st)

	snap := Snapshot{KarmaRows: len(karmaRows), CredentialRows: len(credentialRows)}

	snap.KarmaCSVPath = filepath.Join(outputDir, fmt.Sprintf("karma_%s.csv", stamp))
	if err := writeKarmaCSV(snap.KarmaCSVPath, karmaRows); err != nil {
		return Snapshot{}, err
	}
	snap.KarmaParquetPath = filepath.Join(outputDir, fmt.Sprintf("karma_%s.parquet", stamp))
	if err := writeKarmaParquet(snap.KarmaParquetPath, karmaRows); err != nil {
		return Snapshot{}, err
	}

	snap.CredentialCSVPath = filepath.Join(outputDir, fmt.Sprintf("credentials_%s.csv", stamp))
	if err := writeCredentialCSV(snap.CredentialCSVPath, credentialRows); err != nil {
		return Snapshot{}, err
	}
	snap.CredentialParquetPath = filepath.Join(outputDir, fmt.Sprintf("credentials_%s.parquet", stamp))
	if err := writeCredentialParquet(snap.CredentialParquetPath, credentialRows); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func karmaRows(st *state.State) []KarmaRow {
	ids := make([]string, 0, len(st.Nodes))
	for id := range st.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]KarmaRow, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, KarmaRow{
			NodeID: id,
			Name:   st.Nodes[id].Name,
			Role:   string(st.NodeRoles[id]),
			Karma:  st.KarmaOf(id).String(),
		})
	}
	return rows
}

func credentialRows(st *state.State) []CredentialRow {
	ids := make([]string, 0, len(st.SoulboundTokens))
	for id := range st.SoulboundTokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]CredentialRow, 0)
	for _, id := range ids {
		for _, cred := range st.SoulboundTokens[id] {
			rows = append(rows, CredentialRow{
				NodeID:        id,
				Issuer:        cred.Issuer,
				AchievementID: cred.AchievementID,
				Title:         cred.Title,
				Revocable:     cred.Revocable,
				MintedAt:      cred.MintedAt,
			})
		}
	}
	return rows
}

func writeKarmaCSV(path string, rows []KarmaRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create karma csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"node_id", "name", "role", "karma"}); err != nil {
		return fmt.Errorf("export: write karma csv header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write([]string{r.NodeID, r.Name, r.Role, r.Karma}); err != nil {
			return fmt.Errorf("export: write karma csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush karma csv: %w", err)
	}
	return nil
}

func writeCredentialCSV(path string, rows []CredentialRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create credential csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"node_id", "issuer", "achievement_id", "title", "revocable", "minted_at"}); err != nil {
		return fmt.Errorf("export: write credential csv header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write([]string{r.NodeID, r.Issuer, r.AchievementID, r.Title, boolString(r.Revocable), fmt.Sprintf("%d", r.MintedAt)}); err != nil {
			return fmt.Errorf("export: write credential csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush credential csv: %w", err)
	}
	return nil
}

func writeKarmaParquet(path string, rows []KarmaRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("export: create karma parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(KarmaRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("export: karma parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		row := r
		if err := pw.Write(&row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("export: karma parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("export: karma parquet flush: %w", err)
	}
	return fw.Close()
}

func writeCredentialParquet(path string, rows []CredentialRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("export: create credential parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(CredentialRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("export: credential parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		row := r
		if err := pw.Write(&row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("export: credential parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("export: credential parquet flush: %w", err)
	}
	return fw.Close()
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
