package attendance

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// 冪等キー・クライアント時刻は含めない（同じ内容なら同じ指紋）
type fingerprintInput struct {
	Kind       EventKind   `json:"kind"`
	ClassID    string      `json:"classId"`
	Date       string      `json:"date"`
	Session    SessionType `json:"session"`
	EditReason string      `json:"editReason,omitempty"`
	Records    []Record    `json:"records"`
}

// Fingerprint は正規化済みペイロードの BLAKE2b-256 (hex)
func Fingerprint(kind EventKind, k SessionKey, editReason string, recs []Record) string {
	sorted := make([]Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StudentID < sorted[j].StudentID })

	buf, _ := json.Marshal(fingerprintInput{
		Kind:       kind,
		ClassID:    k.ClassID,
		Date:       k.Date,
		Session:    k.Session,
		EditReason: editReason,
		Records:    sorted,
	})
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
