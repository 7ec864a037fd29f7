package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"stealthcompany.com/patientrecords/internal/dal"
	"stealthcompany.com/patientrecords/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router
func SetupRoutes(patients *dal.PatientModel, seedStatus *dal.SeedStatusModel) *mux.Router {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})

	// Demo endpoints
	r.HandleFunc("/getPatient", GetPatientHandler).Methods("GET")
	r.HandleFunc("/listPatients", ListPatientsHandler).Methods("GET")

	// Store-backed endpoints
	r.HandleFunc("/getPatientWithID", GetPatientWithIDHandler(patients)).Methods("GET")
	r.HandleFunc("/searchPatientsByNameAndDOB", SearchPatientsByNameAndDOBHandler(patients)).Methods("GET")
	r.HandleFunc("/partialSearchUsingPatientName", PartialSearchUsingPatientNameHandler(patients)).Methods("GET")

	// Write endpoints answer 405 themselves
	r.HandleFunc("/addPatient", AddPatientHandler(patients))
	r.HandleFunc("/updatePatient", UpdatePatientHandler(patients))

	r.HandleFunc("/health", HealthHandler).Methods("GET")
	r.HandleFunc("/seedStatus", SeedStatusHandler(seedStatus)).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}
