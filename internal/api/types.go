package api

// Response Types
type PatientSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Allergy string `json:"allergy"`
}

type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Sample data served by the demo endpoints. Never mutated.
var samplePatients = []PatientSummary{
	{ID: "123", Name: "Ahmed", Allergy: "Penicillin"},
	{ID: "456", Name: "Fatima", Allergy: "None"},
}

// Constants
const (
	maxBodyBytes = 1 << 20

	// Patient operation names used in logs and metrics
	opGetPatient      = "getPatient"
	opListPatients    = "listPatients"
	opGetPatientByID  = "getPatientWithID"
	opSearchNameDOB   = "searchPatientsByNameAndDOB"
	opSearchPrefix    = "partialSearchUsingPatientName"
	opAddPatient      = "addPatient"
	opUpdatePatient   = "updatePatient"
	opSeedStatus      = "seedStatus"
	resultSuccess     = "success"
	resultInvalid     = "invalid"
	resultNotFound    = "not_found"
	resultBadMethod   = "method_not_allowed"
	resultStoreFailed = "store_error"
)
