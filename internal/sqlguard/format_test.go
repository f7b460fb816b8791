package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLayout(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single item stays inline",
			in:   "select * from employee_data where Division = 'Sales'",
			want: "SELECT *\nFROM employee_data\nWHERE Division = 'Sales'",
		},
		{
			name: "lists and conditions",
			in:   "select a, b from t where x between 1 and 5 and y = 2 or z is not null",
			want: "SELECT\n  a,\n  b\nFROM t\nWHERE x BETWEEN 1 AND 5\n  AND y = 2\n  OR z IS NOT NULL",
		},
		{
			name: "joins and ordering",
			in:   "select e.FirstName, s.EngagementScore from employee_data e left join employee_engagement_survey_data s on e.EmpID = s.EmpID order by s.EngagementScore desc limit 5",
			want: "SELECT\n  e.FirstName,\n  s.EngagementScore\nFROM employee_data e\nLEFT JOIN employee_engagement_survey_data s ON e.EmpID = s.EmpID\nORDER BY s.EngagementScore DESC\nLIMIT 5",
		},
		{
			name: "subquery",
			in:   "SELECT FirstName FROM employee_data WHERE EmpID IN (SELECT EmpID FROM training_and_development_data WHERE TrainingCost > 500)",
			want: "SELECT FirstName\nFROM employee_data\nWHERE EmpID IN (\n  SELECT EmpID\n  FROM training_and_development_data\n  WHERE TrainingCost > 500\n)",
		},
		{
			name: "common table expression",
			in:   "with s as (select * from employee_data where Division = 'Sales') select count(*) from s",
			want: "WITH s AS (\n  SELECT *\n  FROM employee_data\n  WHERE Division = 'Sales'\n)\nSELECT count(*)\nFROM s",
		},
		{
			name: "comments dropped",
			in:   "-- top earners\nselect count(*) from employee_data /* all rows */",
			want: "SELECT count(*)\nFROM employee_data",
		},
		{
			name: "unary minus",
			in:   "SELECT -1, a - -2 FROM t",
			want: "SELECT\n  -1,\n  a - -2\nFROM t",
		},
		{
			name: "casts",
			in:   "SELECT CAST(DesiredSalary AS INTEGER), StartDate :: date FROM recruitment_data",
			want: "SELECT\n  CAST(DesiredSalary AS INTEGER),\n  StartDate::date\nFROM recruitment_data",
		},
		{
			name: "group by",
			in:   "SELECT Division, COUNT(*) AS headcount FROM employee_data GROUP BY Division",
			want: "SELECT\n  Division,\n  COUNT(*) AS headcount\nFROM employee_data\nGROUP BY Division",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Format(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	inputs := []string{
		"select Division, count(*) as n from employee_data group by Division having count(*) > 3 order by n desc, Division",
		"SELECT * FROM (SELECT EmpID, CASE WHEN PerformanceScore = 'Exceeds' THEN 1 ELSE 0 END AS top FROM employee_data) x WHERE top = 1",
		"select - -1, -(2), 3 -4",
		"SELECT a FROM t UNION SELECT b FROM u ORDER BY 1 LIMIT 10 OFFSET 5",
		"SELECT RANK() OVER (PARTITION BY Division ORDER BY CurrentEmployeeRating DESC) FROM employee_data",
		"WITH a AS (SELECT 1), b AS (SELECT 2) SELECT * FROM a, b",
		"SELECT x FROM t WHERE y IS DISTINCT FROM z AND EXISTS (SELECT 1 FROM u WHERE u.id = t.id)",
		"SELECT 1; SELECT 2",
	}
	for _, in := range inputs {
		once, err := Format(in)
		require.NoError(t, err, in)
		twice, err := Format(once)
		require.NoError(t, err, once)
		assert.Equal(t, once, twice, in)
	}
}

func TestFormatMultipleStatements(t *testing.T) {
	got, err := Format("select 1; select 2;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n\nSELECT 2", got)
}

func TestFormatCommaSeparatedCTEs(t *testing.T) {
	got, err := Format("WITH a AS (SELECT 1), b AS (SELECT 2) SELECT * FROM a, b")
	require.NoError(t, err)
	assert.Equal(t, "WITH a AS (\n  SELECT 1\n),\nb AS (\n  SELECT 2\n)\nSELECT *\nFROM a, b", got)
}
