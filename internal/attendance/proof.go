package attendance

import (
	"fmt"
	"time"

	"edutrack/internal/model"
)

// Proof is the downloadable attendance receipt.
type Proof struct {
	Student     model.Student           `json:"student"`
	Session     model.AttendanceSession `json:"session"`
	Time        string                  `json:"time"`
	SessionCode string                  `json:"sessionCode"`
	Status      string                  `json:"status"`
	Signature   string                  `json:"signature,omitempty"`
}

// NewProof builds an unsigned proof for a completed check-in.
func NewProof(st model.Student, s model.AttendanceSession, at time.Time) Proof {
	return Proof{
		Student:     st,
		Session:     s,
		Time:        at.UTC().Format(time.RFC3339),
		SessionCode: s.SessionCode,
		Status:      "verified",
	}
}

// FileName is the suggested download name of the proof.
func (p Proof) FileName() string {
	matric := p.Student.MatriculationNumber
	if matric == "" {
		matric = "unknown"
	}
	return fmt.Sprintf("attendance-proof-%s-%s.json", p.SessionCode, matric)
}
