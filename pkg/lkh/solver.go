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

// Package lkh wraps the LKH executable behind a Solve call that writes a
// TSPLIB problem, runs the binary with size-tuned parameters, and parses the
// tour file back into a 0-based visiting order.
package lkh

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"knative.dev/pkg/logging"
)

const (
	// maxRuns caps RUNS regardless of the tuning band to bound latency.
	maxRuns = 5

	initialPeriod = 10
	maxCandidates = 5
	traceLevel    = 1

	// execGrace pads the process deadline past LKH's own TIME_LIMIT so the
	// binary gets to write its tour file before we kill it.
	execGrace = 30 * time.Second
)

type Solver struct {
	executable string
}

func NewSolver(executable string) *Solver {
	return &Solver{executable: executable}
}

type Solution struct {
	Tour []int   `json:"tour"`
	Cost float64 `json:"cost"`
}

// Solve runs LKH on the given asymmetric travel-time matrix and returns the
// tour in visiting order. Matrix values are rounded half-to-even to integers
// for the TSPLIB encoding. A non-empty initialTour seeds the search, which
// lets a re-plan warm-start from the previous visiting order.
func (s *Solver) Solve(ctx context.Context, matrix [][]float64, initialTour []int) (*Solution, error) {
	n := len(matrix)
	switch n {
	case 0:
		return &Solution{Tour: []int{}}, nil
	case 1:
		return &Solution{Tour: []int{0}}, nil
	case 2:
		// Open tour: the drive back is not part of the plan.
		return &Solution{Tour: []int{0, 1}, Cost: matrix[0][1]}, nil
	}
	if len(initialTour) > 0 {
		if err := validateTour(initialTour, n); err != nil {
			return nil, fmt.Errorf("invalid initial tour, %w", err)
		}
	}
	tuning := TuningFor(n)

	dir, err := os.MkdirTemp("", "lkh-")
	if err != nil {
		return nil, fmt.Errorf("creating solver workspace, %w", err)
	}
	defer os.RemoveAll(dir)

	problemPath := filepath.Join(dir, "problem.tsp")
	paramPath := filepath.Join(dir, "problem.par")
	tourPath := filepath.Join(dir, "problem.tour")
	if err := os.WriteFile(problemPath, serializeProblem(matrix), 0600); err != nil {
		return nil, fmt.Errorf("writing problem file, %w", err)
	}
	initialPath := ""
	if len(initialTour) > 0 {
		initialPath = filepath.Join(dir, "initial.tour")
		if err := os.WriteFile(initialPath, serializeInitialTour(initialTour), 0600); err != nil {
			return nil, fmt.Errorf("writing initial tour file, %w", err)
		}
	}
	if err := os.WriteFile(paramPath, serializeParams(problemPath, tourPath, initialPath, tuning), 0600); err != nil {
		return nil, fmt.Errorf("writing parameter file, %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, tuning.TimeLimit+execGrace)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.executable, paramPath)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	start := time.Now()
	if err := cmd.Run(); err != nil {
		SolveCount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("running solver on %d nodes, %w", n, err)
	}
	SolveCount.WithLabelValues("success").Inc()
	SolveDuration.Observe(time.Since(start).Seconds())
	logging.FromContext(ctx).Debugf("solved %d-node instance in %s", n, time.Since(start))

	tour, err := parseTour(tourPath, n)
	if err != nil {
		return nil, err
	}
	cost := tourCost(tour, matrix)
	if reported, ok := parseReportedCost(stdout.String()); ok && math.Abs(reported-cost) <= 1 {
		cost = reported
	}
	return &Solution{Tour: tour, Cost: cost}, nil
}

// serializeProblem encodes the matrix as a TSPLIB explicit full-matrix ATSP.
func serializeProblem(matrix [][]float64) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "NAME: dispatch\n")
	fmt.Fprintf(&b, "TYPE: ATSP\n")
	fmt.Fprintf(&b, "DIMENSION: %d\n", len(matrix))
	fmt.Fprintf(&b, "EDGE_WEIGHT_TYPE: EXPLICIT\n")
	fmt.Fprintf(&b, "EDGE_WEIGHT_FORMAT: FULL_MATRIX\n")
	fmt.Fprintf(&b, "EDGE_WEIGHT_SECTION\n")
	for _, row := range matrix {
		for j, v := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", int(math.RoundToEven(v)))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "EOF\n")
	return []byte(b.String())
}

// serializeInitialTour encodes a 0-based tour as a TSPLIB TOUR file.
func serializeInitialTour(tour []int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "NAME : initial_tour_%d\n", len(tour))
	fmt.Fprintf(&b, "TYPE : TOUR\n")
	fmt.Fprintf(&b, "DIMENSION : %d\n", len(tour))
	fmt.Fprintf(&b, "TOUR_SECTION\n")
	for _, node := range tour {
		fmt.Fprintf(&b, "%d\n", node+1)
	}
	fmt.Fprintf(&b, "-1\nEOF\n")
	return []byte(b.String())
}

func validateTour(tour []int, n int) error {
	if len(tour) != n {
		return fmt.Errorf("tour visits %d nodes, want %d", len(tour), n)
	}
	seen := make([]bool, n)
	for _, node := range tour {
		if node < 0 || node >= n {
			return fmt.Errorf("tour node %d outside [0,%d)", node, n)
		}
		if seen[node] {
			return fmt.Errorf("tour visits node %d twice", node)
		}
		seen[node] = true
	}
	return nil
}

func serializeParams(problemPath, tourPath, initialPath string, tuning Tuning) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "PROBLEM_FILE = %s\n", problemPath)
	fmt.Fprintf(&b, "TOUR_FILE = %s\n", tourPath)
	if initialPath != "" {
		fmt.Fprintf(&b, "INITIAL_TOUR_FILE = %s\n", initialPath)
	}
	fmt.Fprintf(&b, "RUNS = %d\n", min(tuning.Runs, maxRuns))
	fmt.Fprintf(&b, "MAX_TRIALS = %d\n", tuning.MaxTrials)
	fmt.Fprintf(&b, "TIME_LIMIT = %g\n", tuning.TimeLimit.Seconds())
	fmt.Fprintf(&b, "INITIAL_PERIOD = %d\n", initialPeriod)
	fmt.Fprintf(&b, "MAX_CANDIDATES = %d\n", maxCandidates)
	fmt.Fprintf(&b, "TRACE_LEVEL = %d\n", traceLevel)
	if tuning.Popmusic {
		fmt.Fprintf(&b, "CANDIDATE_SET_TYPE = POPMUSIC\n")
		fmt.Fprintf(&b, "POPMUSIC_SAMPLE_SIZE = %d\n", tuning.PopmusicSampleSize)
		fmt.Fprintf(&b, "POPMUSIC_SOLUTIONS = %d\n", tuning.PopmusicSolutions)
		fmt.Fprintf(&b, "POPMUSIC_MAX_NEIGHBORS = %d\n", tuning.PopmusicMaxNeighbors)
	}
	if tuning.Subgradient {
		fmt.Fprintf(&b, "SUBGRADIENT = YES\n")
		fmt.Fprintf(&b, "ASCENT_CANDIDATES = %d\n", tuning.AscentCandidates)
	}
	return []byte(b.String())
}

// parseTour reads the TOUR_SECTION of an LKH tour file: 1-based node ids, one
// per line, terminated by -1 or EOF, converted to 0-based.
func parseTour(path string, n int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tour file, %w", err)
	}
	defer f.Close()

	var tour []int
	inSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inSection {
			if line == "TOUR_SECTION" {
				inSection = true
			}
			continue
		}
		if line == "-1" || line == "EOF" || line == "" {
			break
		}
		node, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("malformed tour line %q", line)
		}
		if node < 1 || node > n {
			return nil, fmt.Errorf("tour node %d outside [1,%d]", node, n)
		}
		tour = append(tour, node-1)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tour file, %w", err)
	}
	if len(tour) != n {
		return nil, fmt.Errorf("tour visits %d nodes, want %d", len(tour), n)
	}
	return tour, nil
}

// parseReportedCost scans LKH's stdout for the best tour cost.
func parseReportedCost(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"Cost.min =", "Cost ="} {
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				fields := strings.Fields(rest)
				if len(fields) == 0 {
					continue
				}
				if cost, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], ","), 64); err == nil {
					return cost, true
				}
			}
		}
	}
	return 0, false
}

func tourCost(tour []int, matrix [][]float64) float64 {
	var cost float64
	for i := range tour {
		cost += matrix[tour[i]][tour[(i+1)%len(tour)]]
	}
	return cost
}
