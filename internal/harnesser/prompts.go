package harnesser

import (
	"fmt"
	"time"

	"overhaul/internal/synth"
)

const createSystem = `You are an experienced C security testing engineer. Write a libFuzzer-compatible harness, ` + "`int LLVMFuzzerTestOneInput(const uint8_t *data, size_t size)`" + `, for a function of the given C project. The harness must compile as-is and should be likely to expose a bug in the function under test. Comment each step and explain any project-specific constants you use.

You can call the search_code tool, which searches a vector index of the project's function definitions. It only returns whole functions (file, signature, code) and knows nothing about line numbers, so ask about behaviour or names, one thing at a time.

Only fuzz functions that exist. A function exists when search_code has returned its signature and body.

Rules for the harness:
- Reply with C source only. Do not wrap it in a markdown code block.
- Include every header you need: standard ones such as <stdint.h>, <stddef.h>, <string.h> and <stdlib.h>, and the project's own headers. Many projects have a header named after the project at the root.
- Do not fuzz static functions; they are not visible outside their file. Pick user-facing functions.
- Do not shrink the input to a fixed size or copy it into a small stack buffer. Prefer heap allocations of the exact input size so the library's own bounds handling is exercised.
- Do not write code that crashes on its own. The crash must come from the library.
- Use the project's own structs and constructors where they exist.
- Do not copy function declarations into the harness. It is compiled from the project root with every project directory on the include path.`

const fixSystem = `You are an experienced C security testing engineer. A libFuzzer harness fails to compile. Read the compiler errors, find their root causes and rewrite the harness so it compiles. Add missing #includes such as <string.h>, <stdint.h> and <stdlib.h>, and #define required macros or constants. Re-declare functions or struct types only if the project headers do not provide them. Use the search_code tool to check real signatures. Comment what you changed.

Reply with the complete C source only, without markdown code fences.`

const improveSystemFmt = `You are an experienced C security testing engineer. A libFuzzer harness compiles, but its run was rejected: it found no bug within %s, produced an invalid testcase, leaked memory, or stopped too early. Rewrite it so a real bug is found sooner and memory is managed correctly. Use the search_code tool to understand the constraints and edge cases of the code under test. Remove unnecessary limits on input size or format. Comment what you changed.

Reply with the complete C source only, without markdown code fences.`

// Prompts returns the system and user messages for req. runTimeout is mentioned in
// improve prompts.
func Prompts(req synth.Request, runTimeout time.Duration) (string, string, error) {
	switch r := req.(type) {
	case synth.CreateRequest:
		user := "Static analysis output for the project. If it helps, target the potential vulnerabilities it reports.\n\n" + r.Static
		return createSystem, user, nil
	case synth.FixRequest:
		user := "Harness to fix:\n\n" + r.OldHarness + "\n\nCompilation errors:\n\n" + r.Error
		return fixSystem, user, nil
	case synth.ImproveRequest:
		user := "Harness to improve:\n\n" + r.OldHarness + "\n\nOutput of its execution:\n\n" + r.RunOutput
		return fmt.Sprintf(improveSystemFmt, runTimeout), user, nil
	default:
		return "", "", fmt.Errorf("unsupported request %T", req)
	}
}
