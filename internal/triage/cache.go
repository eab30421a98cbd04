package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gowebpki/jcs"
)

// DefaultCacheSize is the default clarification cache capacity.
const DefaultCacheSize = 100

// Cache memoizes clarification results by request fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (*ClarificationResult, bool, error)
	// Add stores r under key unless an entry already exists, and returns the
	// entry cached after the call.
	Add(ctx context.Context, key string, r *ClarificationResult) (*ClarificationResult, error)
}

type fingerprintDoc struct {
	Symptoms            string          `json:"symptoms"`
	ClarifyingQuestions []string        `json:"clarifyingQuestions"`
	Answers             map[string]bool `json:"answers"`
	BaseRoute           Route           `json:"baseRoute"`
	BaseWaitRange       string          `json:"baseWaitRange"`
	PatientID           string          `json:"patientId"`
}

// Fingerprint is the sha256 of the RFC 8785 canonical JSON of the fields that
// identify a clarification. BaseSeverity is excluded so a resubmission that
// carries an already-adjusted severity maps to the same entry.
func Fingerprint(req *ClarificationRequest) (string, error) {
	doc := fingerprintDoc{
		Symptoms:            req.Symptoms,
		ClarifyingQuestions: req.ClarifyingQuestions,
		Answers:             make(map[string]bool, len(req.Answers)),
		BaseRoute:           req.BaseRoute,
		BaseWaitRange:       req.BaseWaitRange,
		PatientID:           req.Patient.key(),
	}
	if doc.ClarifyingQuestions == nil {
		doc.ClarifyingQuestions = []string{}
	}
	for i, a := range req.Answers {
		doc.Answers[strconv.Itoa(i)] = a
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal fingerprint: %w", err)
	}
	canonical, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("canonicalize fingerprint: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
