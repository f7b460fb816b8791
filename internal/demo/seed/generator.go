package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Row maps column name to value. Columns left out are inserted as NULL.
type Row map[string]any

const dateLayout = "2006-01-02"

var (
	firstNames  = []string{"Ada", "Grace", "Linus", "Barbara", "Alan", "Margaret", "Dennis", "Frances", "Ken", "Radia", "Edsger", "Shafi", "Donald", "Lynn", "Tim", "Hedy"}
	lastNames   = []string{"Lovelace", "Hopper", "Torvalds", "Liskov", "Turing", "Hamilton", "Ritchie", "Allen", "Thompson", "Perlman", "Dijkstra", "Goldwasser", "Knuth", "Conway", "Berners-Lee", "Lamarr"}
	titles      = []string{"Production Technician I", "Production Technician II", "Area Sales Manager", "Software Engineer", "Data Analyst", "IT Support", "Network Engineer", "Accountant I", "Administrative Assistant", "Sr. DBA"}
	units       = []string{"CCDR", "EW", "PL", "TNS", "BPC", "WBL", "NEL", "SVG", "MSC", "PYZ"}
	departments = []string{"Production", "Sales", "IT/IS", "Software Engineering", "Admin Offices", "Executive Office"}
	divisions   = []string{"Finance & Accounting", "Aerial", "General - Sga", "Field Operations", "General - Con", "Engineers", "Executive", "Sales"}
	states      = []string{"MA", "CT", "TX", "CA", "NY", "VT", "GA", "OH", "WA", "FL"}
	performance = []string{"Fully Meets", "Exceeds", "Needs Improvement", "PIP"}
	programs    = []string{"Leadership Development", "Customer Service", "Technical Skills", "Project Management", "Communication Skills"}
	outcomes    = []string{"Passed", "Completed", "Failed", "Incomplete"}
	education   = []string{"High School", "Bachelor's Degree", "Master's Degree", "PhD"}
)

// Generator produces a reproducible Employees dataset for one seed.
type Generator struct {
	rnd   *rand.Rand
	epoch time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) Employee(empID int) Row {
	first := pickOne(g.rnd, firstNames)
	last := pickOne(g.rnd, lastNames)
	start := g.daysBefore(365 * 6)
	active := g.rnd.Intn(100) < 70

	row := Row{
		"EmpID":                      empID,
		"FirstName":                  first,
		"LastName":                   last,
		"StartDate":                  start.Format(dateLayout),
		"Title":                      pickOne(g.rnd, titles),
		"Supervisor":                 pickOne(g.rnd, firstNames) + " " + pickOne(g.rnd, lastNames),
		"ADEmail":                    strings.ToLower(fmt.Sprintf("%s.%s%d@bilearner.com", first, last, empID)),
		"BusinessUnit":               pickOne(g.rnd, units),
		"EmployeeStatus":             "Active",
		"EmployeeType":               pickOne(g.rnd, []string{"Full-Time", "Part-Time", "Contract"}),
		"PayZone":                    pickOne(g.rnd, []string{"Zone A", "Zone B", "Zone C"}),
		"EmployeeClassificationType": pickOne(g.rnd, []string{"Full-Time", "Part-Time", "Temporary"}),
		"TerminationType":            "Unk",
		"TerminationDescription":     "",
		"DepartmentType":             pickOne(g.rnd, departments),
		"Division":                   pickOne(g.rnd, divisions),
		"DOB":                        g.daysBefore(365*60).AddDate(-20, 0, 0).Format(dateLayout),
		"State":                      pickOne(g.rnd, states),
		"JobFunctionDescription":     pickOne(g.rnd, []string{"Accounting", "Engineer", "Technician", "Sales", "Support"}),
		"GenderCode":                 pickOne(g.rnd, []string{"Female", "Male"}),
		"LocationCode":               1000 + g.rnd.Intn(9000),
		"RaceDesc":                   pickOne(g.rnd, []string{"White", "Black", "Asian", "Hispanic", "Other"}),
		"MaritalDesc":                pickOne(g.rnd, []string{"Single", "Married", "Divorced", "Widowed"}),
		"PerformanceScore":           pickOne(g.rnd, performance),
		"CurrentEmployeeRating":      1 + g.rnd.Intn(5),
	}
	if !active {
		exit := start.AddDate(0, 0, 30+g.rnd.Intn(int(g.epoch.Sub(start).Hours()/24)+1))
		if exit.After(g.epoch) {
			exit = g.epoch
		}
		row["ExitDate"] = exit.Format(dateLayout)
		row["EmployeeStatus"] = pickOne(g.rnd, []string{"Voluntarily Terminated", "Terminated for Cause"})
		row["TerminationType"] = pickOne(g.rnd, []string{"Voluntary", "Involuntary", "Retirement", "Resignation"})
		row["TerminationDescription"] = pickOne(g.rnd, []string{"Relocation", "Career change", "Performance", "Attendance"})
	}
	return row
}

func (g *Generator) Applicant(applicantID int) Row {
	first := pickOne(g.rnd, firstNames)
	last := pickOne(g.rnd, lastNames)
	return Row{
		"ApplicantID":       applicantID,
		"ApplicationDate":   g.daysBefore(365).Format(dateLayout),
		"FirstName":         first,
		"LastName":          last,
		"Gender":            pickOne(g.rnd, []string{"Female", "Male"}),
		"DOB":               g.daysBefore(365*40).AddDate(-20, 0, 0).Format(dateLayout),
		"PhoneNumber":       fmt.Sprintf("%03d-%03d-%04d", 200+g.rnd.Intn(800), g.rnd.Intn(1000), g.rnd.Intn(10000)),
		"Email":             strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, applicantID)),
		"Address":           fmt.Sprintf("%d %s Street", 1+g.rnd.Intn(9999), pickOne(g.rnd, lastNames)),
		"City":              pickOne(g.rnd, []string{"Boston", "Austin", "Hartford", "Seattle", "Columbus"}),
		"State":             pickOne(g.rnd, states),
		"ZipCode":           10000 + g.rnd.Intn(89999),
		"Country":           "United States",
		"EducationLevel":    pickOne(g.rnd, education),
		"YearsofExperience": g.rnd.Intn(21),
		"DesiredSalary":     round2(40000 + g.rnd.Float64()*80000),
		"Title":             pickOne(g.rnd, titles),
		"Status":            pickOne(g.rnd, []string{"Applied", "In Review", "Interviewing", "Offered", "Rejected"}),
	}
}

func (g *Generator) Training(empID int) Row {
	return Row{
		"EmpID":                  empID,
		"TrainingDate":           g.daysBefore(730).Format(dateLayout),
		"TrainingProgramName":    pickOne(g.rnd, programs),
		"TrainingType":           pickOne(g.rnd, []string{"Internal", "External"}),
		"TrainingOutcome":        pickOne(g.rnd, outcomes),
		"Location":               pickOne(g.rnd, []string{"Boston", "Austin", "Online"}),
		"Trainer":                pickOne(g.rnd, firstNames) + " " + pickOne(g.rnd, lastNames),
		"TrainingDurationInDays": 1 + g.rnd.Intn(5),
		"TrainingCost":           100 + g.rnd.Intn(900),
	}
}

func (g *Generator) Survey(empID int) Row {
	return Row{
		"EmpID":                empID,
		"SurveyDate":           g.daysBefore(365).Format(dateLayout),
		"EngagementScore":      1 + g.rnd.Intn(5),
		"SatisfactionScore":    1 + g.rnd.Intn(5),
		"WorklifeBalanceScore": 1 + g.rnd.Intn(5),
	}
}

func (g *Generator) daysBefore(maxDays int) time.Time {
	return g.epoch.AddDate(0, 0, -g.rnd.Intn(maxDays))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
