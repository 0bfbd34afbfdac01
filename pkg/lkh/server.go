/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lkh

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"knative.dev/pkg/logging"
)

// Server exposes the solver over HTTP for the dispatcher.
type Server struct {
	solver *Solver
}

func NewServer(solver *Solver) *Server {
	return &Server{solver: solver}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/solve", s.handleSolve)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func (s *Server) handleSolve(c *gin.Context) {
	var req struct {
		Matrix      [][]float64 `json:"matrix"`
		InitialTour []int       `json:"initial_tour"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "matrix is required"})
		return
	}
	for _, row := range req.Matrix {
		if len(row) != len(req.Matrix) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "matrix must be square"})
			return
		}
	}
	if len(req.InitialTour) > 0 {
		if err := validateTour(req.InitialTour, len(req.Matrix)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	solution, err := s.solver.Solve(c.Request.Context(), req.Matrix, req.InitialTour)
	if err != nil {
		logging.FromContext(c.Request.Context()).Errorf("solving %d-node instance, %s", len(req.Matrix), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "solver failed"})
		return
	}
	c.JSON(http.StatusOK, solution)
}
