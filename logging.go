package ewf

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newDefaultLogger 返回一个默认静默的 logger：库在未显式注入 logger 时
// 不应该向宿主程序的标准输出打印任何东西。
func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	return l
}
