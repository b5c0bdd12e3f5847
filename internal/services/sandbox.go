package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codearena/internal/logger"
	"codearena/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LanguageConfig struct {
	ContainerImage   string
	FileExtension    string
	BuildCommand     []string // Empty for interpreted languages
	RunCommand       []string
	NeedsCompilation bool
}

var languageConfigs = map[string]LanguageConfig{
	"go": {
		ContainerImage:   "go-runner",
		FileExtension:    "go",
		BuildCommand:     []string{"go", "build", "-o", "solution", "main.go"},
		RunCommand:       []string{"./solution"},
		NeedsCompilation: true,
	},
	"python": {
		ContainerImage:   "python-runner",
		FileExtension:    "py",
		RunCommand:       []string{"python", "main.py"},
		NeedsCompilation: false,
	},
	"cpp": {
		ContainerImage:   "cpp-runner",
		FileExtension:    "cpp",
		BuildCommand:     []string{"g++", "-O2", "-o", "solution", "main.cpp"},
		RunCommand:       []string{"./solution"},
		NeedsCompilation: true,
	},
}

func SupportedLanguage(name string) bool {
	_, ok := languageConfigs[name]
	return ok
}

// ExecutionSpec is one (code, language, input) triple plus the limits
// the sandbox must enforce.
type ExecutionSpec struct {
	Code           string
	Language       string
	Input          string
	ExpectedOutput string
	TimeLimitMs    int
	MemoryLimitMb  int
}

// CaseResult is the sandbox answer for one spec. Executors never
// return a Go error: internal faults are carried in Status and Error.
type CaseResult struct {
	Output    string
	Passed    bool
	RuntimeMs int
	MemoryMb  int
	Status    string
	Error     string
}

// SandboxExecutor runs one spec in an isolated environment. Stateless;
// knows nothing about challenges or users.
type SandboxExecutor interface {
	Execute(ctx context.Context, spec ExecutionSpec) CaseResult
}

// DockerExecutor isolates each run in a fresh throwaway container with
// no network and a hard memory cap. The wall-clock limit is enforced
// from outside via the context deadline plus a small margin; a run that
// outlives it is force-removed and reported as TIME_LIMIT_EXCEEDED.
type DockerExecutor struct {
	workDir         string
	marginMs        int
	compileBudgetMs int
}

func NewDockerExecutor(workDir string, marginMs, compileBudgetMs int) (*DockerExecutor, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return &DockerExecutor{workDir: workDir, marginMs: marginMs, compileBudgetMs: compileBudgetMs}, nil
}

func (e *DockerExecutor) Execute(ctx context.Context, spec ExecutionSpec) CaseResult {
	langConfig, ok := languageConfigs[spec.Language]
	if !ok {
		return CaseResult{
			Status: models.StatusRuntimeError,
			Error:  fmt.Sprintf("unsupported language: %s", spec.Language),
		}
	}

	execDir := filepath.Join(e.workDir, "exec-"+uuid.NewString())
	if err := os.MkdirAll(execDir, 0755); err != nil {
		return CaseResult{
			Status: models.StatusRuntimeError,
			Error:  fmt.Sprintf("failed to create execution directory: %v", err),
		}
	}
	defer os.RemoveAll(execDir)

	codeFile := filepath.Join(execDir, "main."+langConfig.FileExtension)
	if err := os.WriteFile(codeFile, []byte(spec.Code), 0644); err != nil {
		return CaseResult{
			Status: models.StatusRuntimeError,
			Error:  fmt.Sprintf("failed to write code file: %v", err),
		}
	}

	if langConfig.NeedsCompilation {
		if res := e.compile(ctx, execDir, langConfig, spec); res != nil {
			return *res
		}
	}

	return e.run(ctx, execDir, langConfig, spec)
}

// compile builds the code under the same isolation the run step uses.
// The build gets its own wall-clock budget; a build that outlives it is
// reported as a compilation error, the run limits never start ticking.
func (e *DockerExecutor) compile(ctx context.Context, execDir string, langConfig LanguageConfig, spec ExecutionSpec) *CaseResult {
	budget := time.Duration(e.compileBudgetMs) * time.Millisecond
	compileCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	containerName := "build-" + uuid.NewString()

	args := []string{
		"run", "--rm",
		"--name", containerName,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", spec.MemoryLimitMb),
		"--memory-swap", fmt.Sprintf("%dm", spec.MemoryLimitMb),
		"-v", execDir + ":/app",
		"-w", "/app",
		langConfig.ContainerImage,
	}
	args = append(args, langConfig.BuildCommand...)

	out, err := exec.CommandContext(compileCtx, "docker", args...).CombinedOutput()

	if compileCtx.Err() != nil && ctx.Err() == nil {
		_ = exec.Command("docker", "rm", "-f", containerName).Run()
		return &CaseResult{
			Status: models.StatusCompilationError,
			Error:  fmt.Sprintf("compilation did not finish within %d ms", e.compileBudgetMs),
		}
	}

	if err != nil {
		return &CaseResult{
			Status: models.StatusCompilationError,
			Error:  strings.TrimSpace(string(out)),
		}
	}
	return nil
}

func (e *DockerExecutor) run(ctx context.Context, execDir string, langConfig LanguageConfig, spec ExecutionSpec) CaseResult {
	deadline := time.Duration(spec.TimeLimitMs+e.marginMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	containerName := "run-" + uuid.NewString()

	// GNU time writes peak RSS (KB) and elapsed seconds into the
	// mounted directory so the host can read measurements back.
	wrapped := fmt.Sprintf("/usr/bin/time -q -o stats.txt -f '%%e %%M' %s",
		strings.Join(langConfig.RunCommand, " "))

	args := []string{
		"run", "--rm", "-i",
		"--name", containerName,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", spec.MemoryLimitMb),
		"--memory-swap", fmt.Sprintf("%dm", spec.MemoryLimitMb),
		"-v", execDir + ":/app",
		"-w", "/app",
		langConfig.ContainerImage,
		"sh", "-c", wrapped,
	}

	cmd := exec.CommandContext(runCtx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(spec.Input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	wallMs := int(time.Since(start).Milliseconds())

	runtimeMs, memoryMb := readStats(filepath.Join(execDir, "stats.txt"), wallMs)

	if runCtx.Err() != nil && ctx.Err() == nil {
		// The client process was killed by the deadline; the container
		// may still be alive and has to be reaped explicitly.
		_ = exec.Command("docker", "rm", "-f", containerName).Run()
		return CaseResult{
			Status:    models.StatusTimeLimitExceeded,
			RuntimeMs: spec.TimeLimitMs,
			MemoryMb:  memoryMb,
			Error:     fmt.Sprintf("exceeded time limit of %d ms", spec.TimeLimitMs),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 137 {
			return CaseResult{
				Status:    models.StatusMemoryLimitExceeded,
				RuntimeMs: runtimeMs,
				MemoryMb:  spec.MemoryLimitMb,
				Error:     fmt.Sprintf("exceeded memory limit of %d MB", spec.MemoryLimitMb),
			}
		}

		logger.Log.Debug("Sandbox run failed",
			zap.String("container", containerName),
			zap.Error(err))

		return CaseResult{
			Status:    models.StatusRuntimeError,
			Output:    stdout.String(),
			RuntimeMs: runtimeMs,
			MemoryMb:  memoryMb,
			Error:     strings.TrimSpace(stderr.String()),
		}
	}

	actual := strings.TrimSpace(stdout.String())
	expected := strings.TrimSpace(spec.ExpectedOutput)
	passed := actual == expected

	status := models.StatusAccepted
	if !passed {
		status = models.StatusWrongAnswer
	}

	return CaseResult{
		Output:    actual,
		Passed:    passed,
		RuntimeMs: runtimeMs,
		MemoryMb:  memoryMb,
		Status:    status,
	}
}

// readStats parses the "<elapsed seconds> <peak KB>" line GNU time
// left behind. Falls back to the wall-clock measurement when absent.
func readStats(path string, wallMs int) (runtimeMs, memoryMb int) {
	runtimeMs = wallMs

	data, err := os.ReadFile(path)
	if err != nil {
		return runtimeMs, 0
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return runtimeMs, 0
	}

	if secs, err := strconv.ParseFloat(fields[0], 64); err == nil {
		runtimeMs = int(secs * 1000)
	}
	if kb, err := strconv.Atoi(fields[1]); err == nil {
		memoryMb = kb / 1024
	}

	return runtimeMs, memoryMb
}
