package builder

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRecipe(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Recipe")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	return path
}

func TestParseRecipeBasic(t *testing.T) {
	path := writeRecipe(t, "FROM alpine:3.19\nRUN apk add curl\nWORKDIR /app\nENV FOO=bar\nCMD [\"/bin/sh\"]\n")

	directives, err := ParseRecipe(path)
	if err != nil {
		t.Fatalf("ParseRecipe: %v", err)
	}
	if len(directives) != 5 {
		t.Fatalf("got %d directives, want 5", len(directives))
	}
	wantKinds := []DirectiveKind{From, Run, Workdir, Env, Cmd}
	for i, want := range wantKinds {
		if directives[i].Kind != want {
			t.Errorf("directive[%d].Kind = %q, want %q", i, directives[i].Kind, want)
		}
	}
	if directives[0].Args != "alpine:3.19" {
		t.Errorf("FROM args = %q, want alpine:3.19", directives[0].Args)
	}
}

func TestParseRecipeRequiresFromFirst(t *testing.T) {
	path := writeRecipe(t, "RUN echo hi\n")
	if _, err := ParseRecipe(path); err == nil {
		t.Error("expected an error when the recipe doesn't start with FROM")
	}
}

func TestParseRecipeSkipsBlankAndCommentLines(t *testing.T) {
	path := writeRecipe(t, "FROM alpine:3.19\n\n# a comment\n\nRUN echo hi\n")
	directives, err := ParseRecipe(path)
	if err != nil {
		t.Fatalf("ParseRecipe: %v", err)
	}
	if len(directives) != 2 {
		t.Fatalf("got %d directives, want 2 (blank/comment lines should be dropped)", len(directives))
	}
}

func TestParseRecipeJoinsLineContinuations(t *testing.T) {
	path := writeRecipe(t, "FROM alpine:3.19\nRUN apk add \\\n    curl \\\n    git\n")
	directives, err := ParseRecipe(path)
	if err != nil {
		t.Fatalf("ParseRecipe: %v", err)
	}
	if len(directives) != 2 {
		t.Fatalf("got %d directives, want 2", len(directives))
	}
	want := "apk add  curl  git"
	if directives[1].Args != want {
		t.Errorf("joined RUN args = %q, want %q", directives[1].Args, want)
	}
}

func TestParseRecipeUnknownDirectiveWarnsAndSkips(t *testing.T) {
	path := writeRecipe(t, "FROM alpine:3.19\nFROBNICATE something\nRUN echo hi\n")
	directives, err := ParseRecipe(path)
	if err != nil {
		t.Fatalf("ParseRecipe: %v", err)
	}
	if len(directives) != 2 {
		t.Fatalf("got %d directives, want 2 (unknown directive should be dropped, not fatal)", len(directives))
	}
}

func TestParseCmdJSON(t *testing.T) {
	cmd, err := ParseCmdJSON(`["/bin/sh", "-c", "echo hi"]`)
	if err != nil {
		t.Fatalf("ParseCmdJSON: %v", err)
	}
	want := []string{"/bin/sh", "-c", "echo hi"}
	if len(cmd) != len(want) {
		t.Fatalf("got %v, want %v", cmd, want)
	}
	for i := range want {
		if cmd[i] != want[i] {
			t.Errorf("cmd[%d] = %q, want %q", i, cmd[i], want[i])
		}
	}
}

func TestParseCmdJSONRejectsNonArray(t *testing.T) {
	if _, err := ParseCmdJSON(`/bin/sh -c echo hi`); err == nil {
		t.Error("expected an error for a non-JSON-array CMD")
	}
}

func TestParseEnvKeyEqualsValueForm(t *testing.T) {
	got, err := ParseEnv("FOO=bar")
	if err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	if got != "FOO=bar" {
		t.Errorf("ParseEnv = %q, want FOO=bar", got)
	}
}

func TestParseEnvKeySpaceValueForm(t *testing.T) {
	got, err := ParseEnv("FOO bar baz")
	if err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	if got != "FOO=bar baz" {
		t.Errorf("ParseEnv = %q, want FOO=bar baz", got)
	}
}

func TestParseEnvRejectsMissingValue(t *testing.T) {
	if _, err := ParseEnv("FOO"); err == nil {
		t.Error("expected an error for ENV with no value")
	}
}

func TestParseCopy(t *testing.T) {
	src, dst, err := ParseCopy("app.sh /app.sh")
	if err != nil {
		t.Fatalf("ParseCopy: %v", err)
	}
	if src != "app.sh" || dst != "/app.sh" {
		t.Errorf("ParseCopy = (%q, %q), want (app.sh, /app.sh)", src, dst)
	}
}

func TestParseCopyRejectsWrongArgCount(t *testing.T) {
	if _, _, err := ParseCopy("one two three"); err == nil {
		t.Error("expected an error for COPY with more than two fields")
	}
	if _, _, err := ParseCopy("onlyone"); err == nil {
		t.Error("expected an error for COPY with only one field")
	}
}
