package fileblob

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	multipartTmpDir  = "fileblob.sys.tmp"
	multipartMetaFile = "multipart.json"
)

type multipartMeta struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

func writeMultipartMeta(dir string, m multipartMeta) error {
	f, err := os.Create(filepath.Join(dir, multipartMetaFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(m)
}

func readMultipartMeta(dir string) (multipartMeta, error) {
	var m multipartMeta
	f, err := os.Open(filepath.Join(dir, multipartMetaFile))
	if err != nil {
		return m, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return m, err
	}
	return m, nil
}

func partFileName(partNumber int) string {
	return fmt.Sprintf("part-%05d", partNumber)
}

func newUploadID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
