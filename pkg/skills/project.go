package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// maxProjectFiles caps the scaffold at 9 model calls total: 1 plan + 8 files.
const maxProjectFiles = 8

const projectPlanPrompt = "You are a senior software architect at Mercator, an industrial automation AI company.\n\n" +
	"Your job: design a project scaffold based on the user's request.\n\n" +
	"Output ONLY valid JSON with this exact schema — no markdown fences, no commentary:\n" +
	`{"title": "short project title", "description": "1-2 sentence description", ` +
	`"tech_stack": ["python", "fastapi"], ` +
	`"files": [{"filename": "README.md", "description": "Project overview with setup instructions"}, ` +
	`{"filename": "main.py", "description": "Application entry point"}, ` +
	`{"filename": "requirements.txt", "description": "Python dependencies"}]}` + "\n\n" +
	"Rules:\n" +
	"1. Always include README.md as the first file\n" +
	"2. Include a dependency manifest (requirements.txt, package.json, go.mod, etc.)\n" +
	"3. Include .gitignore appropriate for the tech stack\n" +
	"4. 3-8 files total — enough to be useful, not overwhelming\n" +
	"5. Infer the tech stack from the request (default to Python if ambiguous)\n" +
	"6. Include functional code structure, not just stubs\n" +
	"7. Use industrial automation context when relevant (PLCs, Modbus, MQTT, OPC UA)"

const projectFilePrompt = "You are a senior developer at Mercator.\n\n" +
	"Project context:\n" +
	"- Title: %s\n" +
	"- Description: %s\n" +
	"- Tech stack: %s\n\n" +
	"Generate the file: %s\n" +
	"Purpose: %s\n\n" +
	"Rules:\n" +
	"1. Output ONLY the file content — no markdown fences, no explanation\n" +
	"2. Write functional, production-quality code with helpful comments\n" +
	"3. Keep under 150 lines\n" +
	"4. Use modern best practices for the tech stack\n" +
	"5. Include proper imports, error handling, and type hints where applicable"

const projectUsage = "**Project Skill** — scaffold multi-file projects as GitHub Gists.\n\n" +
	"**Usage:**\n" +
	"- `/project FastAPI service for PLC tag monitoring`\n" +
	"- `/project Python CLI for Modbus scanning`\n" +
	"- `build me a Telegram bot for factory alerts`\n" +
	"- `scaffold a React dashboard for conveyor status`\n"

var (
	fenceOpenRe  = regexp.MustCompile("^```\\w*\\s*\\n?")
	fenceCloseRe = regexp.MustCompile("\\n?```\\s*$")
)

// stripFences removes markdown code fences the model wrapped around content
// that should have been bare.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = fenceOpenRe.ReplaceAllString(text, "")
	return fenceCloseRe.ReplaceAllString(text, "")
}

// projectPlan is the phase-1 scaffold design returned by the model.
type projectPlan struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	TechStack   []string          `json:"tech_stack"`
	Files       []projectFileSpec `json:"files"`
}

type projectFileSpec struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// projectFile is one generated scaffold file. Slice order follows the plan
// so replies and commits are deterministic.
type projectFile struct {
	Name    string
	Content string
}

// ProjectSkill scaffolds multi-file projects: a JSON plan, one generation
// call per file, then publication as a gist and an optional local git repo.
type ProjectSkill struct{}

// NewProjectSkill returns the project skill.
func NewProjectSkill() *ProjectSkill { return &ProjectSkill{} }

func (s *ProjectSkill) Name() string { return "project" }

func (s *ProjectSkill) Description() string {
	return "Scaffold multi-file projects and publish as GitHub Gists"
}

func (s *ProjectSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentProject}
}

func (s *ProjectSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	if !sc.userAllowed(msg.UserID) {
		return messages.Reply(msg, "Project creation is restricted to authorized users."), nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(strings.ToLower(text), "/project") {
		text = strings.TrimSpace(text[8:])
	}
	for _, prefix := range []string{"scaffold ", "build me ", "bootstrap "} {
		if strings.HasPrefix(strings.ToLower(text), prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}
	if text == "" {
		return messages.Reply(msg, projectUsage), nil
	}

	planPrompt := text
	if kbContext := briefKBContext(ctx, sc, text); kbContext != "" {
		planPrompt = text + "\n\nRelevant knowledge base context:\n" + kbContext
	}

	if sc.Router == nil {
		return messages.Reply(msg, "Failed to plan project. Please try again."), nil
	}
	planResp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       messages.IntentProject,
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: planPrompt}},
		SystemPrompt: projectPlanPrompt,
		JSONMode:     true,
		MaxTokens:    1024,
		Temperature:  0.3,
	})
	if err != nil {
		slog.Error("LLM failed during project planning", "error", err)
		return messages.Reply(msg, "Failed to plan project. Please try again."), nil
	}

	plan := parseProjectPlan(planResp.Text)
	if plan == nil {
		return messages.Reply(msg, "Could not parse project plan. Please rephrase your request."), nil
	}
	if plan.Title == "" {
		plan.Title = "Untitled Project"
	}
	if len(plan.Files) > maxProjectFiles {
		plan.Files = plan.Files[:maxProjectFiles]
	}
	if len(plan.Files) == 0 {
		return messages.Reply(msg, "Project plan contained no files. Please try again with more detail."), nil
	}

	files, failed := s.generateFiles(ctx, sc, plan)

	gistURL := s.publish(ctx, sc, files, plan.Title+": "+plan.Description)
	localPath := s.checkout(sc, plan.Title, files)

	stack := strings.Join(plan.TechStack, ", ")
	if stack == "" {
		stack = "not specified"
	}

	var reply string
	if gistURL != "" {
		var names []string
		for _, f := range files {
			names = append(names, fmt.Sprintf("  - `%s`", f.Name))
		}
		reply = fmt.Sprintf("**Project scaffolded:** %s\n\n**%s**\n%s\n\n**Tech stack:** %s\n**Files (%d):**\n%s",
			gistURL, plan.Title, plan.Description, stack, len(files), strings.Join(names, "\n"))
	} else {
		var sizes []string
		for _, f := range files {
			sizes = append(sizes, fmt.Sprintf("  - `%s` (%d chars)", f.Name, len(f.Content)))
		}
		reply = fmt.Sprintf("**%s**\n%s\n\n_Gist upload failed — files generated but not published:_\n**Files (%d):**\n%s",
			plan.Title, plan.Description, len(files), strings.Join(sizes, "\n"))
	}
	if localPath != "" {
		reply += fmt.Sprintf("\n**Local repo:** %s", localPath)
	}
	if len(failed) > 0 {
		reply += fmt.Sprintf("\n\n_Partial failures: %s_", strings.Join(failed, ", "))
	}
	return messages.Reply(msg, reply), nil
}

// generateFiles runs the phase-2 content calls. A failed file gets an error
// placeholder body so the scaffold layout survives intact.
func (s *ProjectSkill) generateFiles(ctx context.Context, sc *Context, plan *projectPlan) ([]projectFile, []string) {
	var files []projectFile
	var failed []string

	for _, spec := range plan.Files {
		name := spec.Filename
		if name == "" {
			name = "unknown.txt"
		}
		prompt := fmt.Sprintf(projectFilePrompt,
			plan.Title, plan.Description, strings.Join(plan.TechStack, ", "), name, spec.Description)

		resp, err := sc.Router.Route(ctx, routing.RouteRequest{
			Intent:      messages.IntentProject,
			Messages:    []providers.Message{{Role: providers.RoleUser, Content: prompt}},
			MaxTokens:   2048,
			Temperature: 0.3,
		})
		if err != nil {
			slog.Error("failed to generate project file", "filename", name, "error", err)
			files = append(files, projectFile{Name: name, Content: fmt.Sprintf("# Error: failed to generate %s\n", name)})
			failed = append(failed, name)
			continue
		}
		files = append(files, projectFile{Name: name, Content: stripFences(resp.Text)})
	}
	return files, failed
}

// publish uploads the scaffold as a multi-file gist; empty means fall back
// to the unpublished listing.
func (s *ProjectSkill) publish(ctx context.Context, sc *Context, files []projectFile, description string) string {
	if sc.Publisher == nil || !sc.Publisher.IsConfigured() {
		slog.Warn("gist publisher not configured, project not published")
		return ""
	}
	gistFiles := make(map[string]connectors.GistFile, len(files))
	for _, f := range files {
		// No path traversal into the gist namespace.
		gistFiles[filepath.Base(f.Name)] = connectors.GistFile{Content: f.Content}
	}
	gist, err := sc.Publisher.Create(ctx, truncate(description, 200), true, gistFiles)
	if err != nil {
		slog.Error("multi-file gist create failed", "files", len(files), "error", err)
		return ""
	}
	slog.Info("multi-file gist created", "url", gist.HTMLURL, "files", len(files))
	return gist.HTMLURL
}

// checkout writes the scaffold under the projects directory and commits it,
// so the crew can clone or inspect it on the shop floor box. Empty result
// means no local checkout was made.
func (s *ProjectSkill) checkout(sc *Context, title string, files []projectFile) string {
	if sc.ProjectsDir == "" {
		return ""
	}
	dir := filepath.Join(sc.ProjectsDir, projectSlug(title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("project checkout skipped", "dir", dir, "error", err)
		return ""
	}
	for _, f := range files {
		name := filepath.Base(f.Name)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o644); err != nil {
			slog.Warn("project checkout skipped", "file", name, "error", err)
			return ""
		}
	}

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		slog.Warn("project git init failed", "dir", dir, "error", err)
		return dir
	}
	worktree, err := repo.Worktree()
	if err != nil {
		slog.Warn("project git worktree failed", "dir", dir, "error", err)
		return dir
	}
	if _, err := worktree.Add("."); err != nil {
		slog.Warn("project git add failed", "dir", dir, "error", err)
		return dir
	}
	_, err = worktree.Commit("Initial scaffold", &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Foreman",
			Email: "foreman@local",
			When:  time.Now(),
		},
	})
	if err != nil {
		slog.Warn("project git commit failed", "dir", dir, "error", err)
	}
	return dir
}

// parseProjectPlan decodes the plan JSON, tolerating markdown fences.
func parseProjectPlan(text string) *projectPlan {
	var plan projectPlan
	if err := json.Unmarshal([]byte(text), &plan); err == nil {
		return &plan
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &plan); err != nil {
		slog.Error("failed to parse project plan JSON", "text", truncate(text, 200))
		return nil
	}
	return &plan
}

// projectSlug turns a plan title into a directory name.
func projectSlug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "project"
	}
	return slug
}
