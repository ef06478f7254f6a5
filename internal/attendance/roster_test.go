package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/model"
)

func TestTally(t *testing.T) {
	present, absent := Tally(3, []model.SessionStudent{
		{ID: "1", Status: model.Present},
		{ID: "2", Status: model.Absent},
		{ID: "3", Status: model.Present},
	})
	assert.Equal(t, 2, present)
	assert.Equal(t, 1, absent)

	present, absent = Tally(0, nil)
	assert.Zero(t, present)
	assert.Zero(t, absent)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0, Rate(model.AttendanceSession{}))
	assert.Equal(t, 33, Rate(model.AttendanceSession{TotalStudents: 3, PresentStudents: 1}))
	assert.Equal(t, 100, Rate(model.AttendanceSession{TotalStudents: 2, PresentStudents: 2}))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	p := Paginate(items, 1, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, p.Items)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 12, p.Total)

	p = Paginate(items, 3, 5)
	assert.Equal(t, []int{11, 12}, p.Items)

	p = Paginate(items, 9, 5)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, []int{11, 12}, p.Items)

	p = Paginate(items, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Items, PageSize)

	empty := Paginate([]int{}, 2, 5)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestFilterStudents(t *testing.T) {
	students := []model.Student{
		{Name: "Ada Obi", MatriculationNumber: "CEE100201", Department: "Civil"},
		{Name: "Bola Ade", MatriculationNumber: "EEE123456", Department: "Electrical"},
		{Name: "Adamu Bello", MatriculationNumber: "MEE200310", Department: "Mechanical"},
	}

	assert.Len(t, FilterStudents(students, ""), 3)
	assert.Len(t, FilterStudents(students, "ada"), 2)
	assert.Len(t, FilterStudents(students, "ade"), 1)
	assert.Len(t, FilterStudents(students, "cee1"), 1)
	assert.Empty(t, FilterStudents(students, "zzz"))

	byDept := FilterStudents(students, "ELECTRICAL")
	require.Len(t, byDept, 1)
	assert.Equal(t, "Bola Ade", byDept[0].Name)
	byDept = FilterStudents(students, "mech")
	require.Len(t, byDept, 1)
	assert.Equal(t, "Adamu Bello", byDept[0].Name)
}

func TestProximity(t *testing.T) {
	lat, lon := 6.5158, 3.3898
	sess := model.AttendanceSession{Latitude: &lat, Longitude: &lon}

	same := CheckProximity(sess, Point{Latitude: lat, Longitude: lon}, 3000)
	assert.True(t, same.Checked)
	assert.True(t, same.Within)
	assert.True(t, same.NearVenue)
	assert.InDelta(t, 0, same.Distance, 0.001)

	// roughly 11.1 km north
	far := CheckProximity(sess, Point{Latitude: lat + 0.1, Longitude: lon}, 3000)
	assert.False(t, far.Within)
	assert.InDelta(t, 11119, far.Distance, 5)

	unchecked := CheckProximity(model.AttendanceSession{}, Point{}, 3000)
	assert.False(t, unchecked.Checked)
}

func TestProofFileName(t *testing.T) {
	p := Proof{SessionCode: "10333499", Student: model.Student{MatriculationNumber: "CEE100201"}}
	assert.Equal(t, "attendance-proof-10333499-CEE100201.json", p.FileName())

	p.Student.MatriculationNumber = ""
	assert.Equal(t, "attendance-proof-10333499-unknown.json", p.FileName())
}
