package server

import "casetrace/constants"

// extractRequest is the JSON body for URL-sourced extraction, sync or async.
type extractRequest struct {
	CaseID string `json:"case_id"`
	URL    string `json:"url"`
}

// taskAccepted is returned by the async endpoints alongside HTTP 202.
type taskAccepted struct {
	TaskID string               `json:"task_id"`
	CaseID string               `json:"case_id"`
	Status constants.TaskStatus `json:"status"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
