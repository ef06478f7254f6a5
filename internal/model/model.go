package model

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// CheckInStatus marks a roster entry inside a session.
type CheckInStatus string

const (
	Present CheckInStatus = "present"
	Absent  CheckInStatus = "absent"
)

// Student is a roster entry as stored by the REST collaborator.
type Student struct {
	ID                  string  `json:"id,omitempty"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	MatriculationNumber string  `json:"matriculationNumber"`
	Department          string  `json:"department"`
	Level               string  `json:"level"`
	Faculty             string  `json:"faculty"`
	Gender              string  `json:"gender"`
	DateOfBirth         string  `json:"dateOfBirth"` // YYYY-MM-DD
	PhoneNumber         string  `json:"phoneNumber"`
	Address             string  `json:"address"`
	ProfilePicture      string  `json:"profilePicture"`
	FaceData            string  `json:"faceData"`
	AttendanceScore     float64 `json:"attendanceScore"`
}

// SessionStudent is one check-in record appended to a session.
type SessionStudent struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MatricNumber string        `json:"matricNumber"`
	TimeJoined   string        `json:"timeJoined"` // HH:MM local
	Status       CheckInStatus `json:"status"`
}

// AttendanceSession is one class meeting window.
type AttendanceSession struct {
	ID              string           `json:"id"`
	CourseCode      string           `json:"courseCode"`
	CourseName      string           `json:"courseName"`
	Date            string           `json:"date"`      // YYYY-MM-DD
	TimeStart       string           `json:"timeStart"` // HH:MM
	TimeEnd         string           `json:"timeEnd"`   // HH:MM
	Duration        float64          `json:"duration"`  // hours
	TotalStudents   int              `json:"totalStudents"`
	PresentStudents int              `json:"presentStudents"`
	AbsentStudents  int              `json:"absentStudents"`
	LateStudents    int              `json:"lateStudents"`
	Students        []SessionStudent `json:"students"`
	SessionCode     string           `json:"sessionCode"`
	Status          SessionStatus    `json:"status"`
	Latitude        *float64         `json:"latitude"`
	Longitude       *float64         `json:"longitude"`
}

// Active reports whether students may still join.
func (s AttendanceSession) Active() bool { return s.Status == SessionActive }

// HasLocation reports whether the instructor position was captured at creation.
func (s AttendanceSession) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// SessionPatch is a partial update; nil fields are not sent.
type SessionPatch struct {
	Students        []SessionStudent `json:"students,omitempty"`
	PresentStudents *int             `json:"presentStudents,omitempty"`
	AbsentStudents  *int             `json:"absentStudents,omitempty"`
	Status          *SessionStatus   `json:"status,omitempty"`
}

// Apply merges the patch into s.
func (p SessionPatch) Apply(s *AttendanceSession) {
	if p.Students != nil {
		s.Students = p.Students
	}
	if p.PresentStudents != nil {
		s.PresentStudents = *p.PresentStudents
	}
	if p.AbsentStudents != nil {
		s.AbsentStudents = *p.AbsentStudents
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
}
