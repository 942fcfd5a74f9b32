package usecase

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
)

// NewReference builds a globally unique payment reference embedding purpose,
// company id, timestamp and a random suffix, e.g.
//
//	EMP-1c9f42ab-1724300000-9f3c2a
//
// The reference is generated once at initiation and never regenerated. It is
// parseable for operational debugging but is never a second source of truth.
func NewReference(purpose model.PaymentPurpose, companyID string) string {
	short := strings.ToLower(strings.ReplaceAll(companyID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s-%s-%d-%s", purpose.ReferenceTag(), short, time.Now().Unix(), hex.EncodeToString(buf[:]))
}

// ReferenceParts is the decoded form of a reference, for debugging only.
type ReferenceParts struct {
	Purpose        model.PaymentPurpose
	CompanyIDShort string
	IssuedAt       time.Time
	Suffix         string
}

func ParseReference(ref string) (*ReferenceParts, error) {
	parts := strings.Split(ref, "-")
	if len(parts) != 4 {
		return nil, domain.ErrValidation
	}
	purpose, ok := model.PurposeFromTag(parts[0])
	if !ok {
		return nil, domain.ErrValidation
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, domain.ErrValidation
	}
	return &ReferenceParts{
		Purpose:        purpose,
		CompanyIDShort: parts[1],
		IssuedAt:       time.Unix(ts, 0),
		Suffix:         parts[3],
	}, nil
}
