package strategy

const (
	LauncherJava   = "java"
	LauncherScript = "script"
)

func GetRunner(launcher string) ServerRunner {
	switch launcher {
	case LauncherScript:
		return &ScriptRunner{}
	default:
		return &JavaRunner{}
	}
}
