package files

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/kalambet/sitecraft/internal/site"
)

// ArchiveName is the download file name for a session archive.
func ArchiveName(sessionID string) string {
	return "website_" + sessionID + ".zip"
}

// Archive writes a zip of the session's components to w, plus an index.html
// that stitches them together in render order. It returns the number of
// components archived. An empty session yields an archive with index.html only.
func (s *Store) Archive(w io.Writer, sessionID, title string) (int, error) {
	all, err := s.ReadAll(sessionID)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	now := time.Now()
	add := func(name, content string) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return err
		}
		_, err = io.WriteString(fw, content)
		return err
	}

	ids := all.IDs()
	for _, id := range ids {
		a := all[id]
		for _, f := range []struct{ ext, content string }{
			{site.ExtMarkup, a.Markup},
			{site.ExtStyle, a.Style},
			{site.ExtBehavior, a.Behavior},
		} {
			if err := add(id+"."+f.ext, f.content); err != nil {
				return 0, fmt.Errorf("archiving %s: %w", id, err)
			}
		}
	}

	page, err := site.Page(title, all)
	if err != nil {
		return 0, fmt.Errorf("assembling page: %w", err)
	}
	if err := add("index.html", page); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
