package handlers

import (
	"encoding/json"
	"net/http"
)

type predictionResponse struct {
	Success              bool                `json:"success"`
	Class                int                 `json:"class"`
	Confidence           float64             `json:"confidence"`
	ConfidencePercentage string              `json:"confidence_percentage"`
	Plant                string              `json:"plant"`
	Disease              string              `json:"disease"`
	FullName             string              `json:"full_name"`
	Treatment            []string            `json:"treatment"`
	LowConfidence        bool                `json:"low_confidence"`
	Warning              string              `json:"warning,omitempty"`
	TopPredictions       []candidateResponse `json:"top_predictions,omitempty"`
}

type candidateResponse struct {
	Class                int     `json:"class"`
	Confidence           float64 `json:"confidence"`
	ConfidencePercentage string  `json:"confidence_percentage"`
	Plant                string  `json:"plant"`
	Disease              string  `json:"disease"`
	FullName             string  `json:"full_name"`
}

type indeterminateResponse struct {
	Success              bool    `json:"success"`
	Indeterminate        bool    `json:"indeterminate"`
	Confidence           float64 `json:"confidence"`
	ConfidencePercentage string  `json:"confidence_percentage"`
	Message              string  `json:"message"`
}

type healthResponse struct {
	Status       string     `json:"status"`
	ModelLoaded  bool       `json:"model_loaded"`
	TotalClasses int        `json:"total_classes"`
	Model        *modelInfo `json:"model,omitempty"`
}

type modelInfo struct {
	InputShape []int64 `json:"input_shape"`
	NumClasses int     `json:"num_classes"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{
		Success: false,
		Code:    code,
		Error:   message,
	})
}
