package agents

// builtinApps is the compiled table of agent apps skillkit knows about.
// Global paths are expanded against the home directory at lookup time.
var builtinApps = []App{
	{ID: "claude-code", DisplayName: "Claude Code", ProjectPath: ".claude/skills", GlobalPath: "~/.claude/skills"},
	{ID: "codex", DisplayName: "Codex", ProjectPath: ".codex/skills", GlobalPath: "~/.codex/skills"},
	{ID: "cursor", DisplayName: "Cursor", ProjectPath: ".cursor/skills", GlobalPath: "~/.cursor/skills"},
	{ID: "cline", DisplayName: "Cline", ProjectPath: ".cline/skills", GlobalPath: "~/.cline/skills"},
	{ID: "opencode", DisplayName: "OpenCode", ProjectPath: ".opencode/skills", GlobalPath: "~/.config/opencode/skills"},
	{ID: "openhands", DisplayName: "OpenHands", ProjectPath: ".openhands/skills", GlobalPath: "~/.openhands/skills"},
	{ID: "github-copilot", DisplayName: "GitHub Copilot", ProjectPath: ".github/skills", GlobalPath: "~/.copilot/skills"},
	{ID: "continue", DisplayName: "Continue", ProjectPath: ".continue/skills", GlobalPath: "~/.continue/skills"},
	{ID: "gemini-cli", DisplayName: "Gemini CLI", ProjectPath: ".gemini/skills", GlobalPath: "~/.gemini/skills"},
	{ID: "goose", DisplayName: "Goose", ProjectPath: ".goose/skills", GlobalPath: "~/.config/goose/skills"},
	{ID: "windsurf", DisplayName: "Windsurf", ProjectPath: ".windsurf/skills", GlobalPath: "~/.codeium/windsurf/skills"},
	{ID: "roo", DisplayName: "Roo Code", ProjectPath: ".roo/skills", GlobalPath: "~/.roo/skills"},
	{ID: "kiro-cli", DisplayName: "Kiro CLI", ProjectPath: ".kiro/skills", GlobalPath: "~/.kiro/skills"},
	{ID: "qwen-code", DisplayName: "Qwen Code", ProjectPath: ".qwen/skills", GlobalPath: "~/.qwen/skills"},
	{ID: "amp", DisplayName: "AMP", ProjectPath: ".agents/skills", GlobalPath: "~/.config/agents/skills"},
	{ID: "antigravity", DisplayName: "Antigravity", ProjectPath: ".agent/skills", GlobalPath: "~/.gemini/antigravity/skills"},
	{ID: "command-code", DisplayName: "Command Code", ProjectPath: ".commandcode/skills", GlobalPath: "~/.commandcode/skills"},
	{ID: "crush", DisplayName: "Crush", ProjectPath: ".crush/skills", GlobalPath: "~/.config/crush/skills"},
	{ID: "trae", DisplayName: "Trae", ProjectPath: ".trae/skills", GlobalPath: "~/.trae/skills"},
	{ID: "trae-cn", DisplayName: "Trae CN", ProjectPath: ".trae-cn/skills", GlobalPath: "~/.trae-cn/skills"},
	{ID: "vscode", DisplayName: "VSCode", ProjectPath: ".github/skills", GlobalPath: "~/.vscode/skills"},
}

// Builtins returns a copy of the compiled agent table.
func Builtins() []App {
	out := make([]App, len(builtinApps))
	copy(out, builtinApps)
	return out
}

func isBuiltinID(id string) bool {
	for _, app := range builtinApps {
		if app.ID == id {
			return true
		}
	}
	return false
}
