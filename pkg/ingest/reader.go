package ingest

import (
	"archive/zip"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Optum/tally/pkg/common"
	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

// fetchBillingCSV downloads the zipped report into workDir and extracts the
// first CSV entry. The caller removes the returned file when done.
func fetchBillingCSV(storage common.Storager, f *BillingFile, workDir string) (string, error) {
	zipPath := filepath.Join(workDir, filepath.Base(f.Key))
	err := retry.Do(
		func() error {
			return storage.Download(f.Bucket, f.Key, zipPath)
		},
		retry.Attempts(3),
		retry.Delay(5*time.Second),
	)
	if err != nil {
		return "", errors.Wrapf(err, "downloading %s", f)
	}
	defer os.Remove(zipPath)

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", zipPath)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if !strings.HasSuffix(entry.Name, ".csv") {
			continue
		}
		csvPath := strings.TrimSuffix(zipPath, ".zip")
		if err := extractEntry(entry, csvPath); err != nil {
			return "", err
		}
		return csvPath, nil
	}
	return "", errors.Errorf("no csv entry in %s", f)
}

func extractEntry(entry *zip.File, path string) error {
	src, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, "opening zip entry %s", entry.Name)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return errors.Wrapf(err, "extracting %s", entry.Name)
}

// forEachRow streams the CSV at path. The first row goes to header, every
// following row to row. Ragged rows are allowed; the processor bounds-checks
// column access.
func forEachRow(path string, header func(row []string) error, row func(row []string) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err != nil {
		return errors.Wrapf(err, "reading header of %s", path)
	}
	if err := header(first); err != nil {
		return err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		if err := row(record); err != nil {
			return err
		}
	}
}
