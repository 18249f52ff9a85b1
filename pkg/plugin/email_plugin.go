package plugin

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
)

// smtpsPort 隐式TLS端口
const smtpsPort = 465

// EmailPlugin 运行事件邮件通知
type EmailPlugin struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	ready    bool

	// send 投递函数，测试中可替换
	send func(subject, body string) error
}

// NewEmailPlugin 创建邮件通知插件，需要 Init 后才能使用
func NewEmailPlugin() Plugin {
	p := &EmailPlugin{}
	p.send = p.deliver
	return p
}

func (e *EmailPlugin) Name() string {
	return "email"
}

// Init 读取 smtp_host/smtp_port/username/password/from/to，to 以逗号分隔
func (e *EmailPlugin) Init(params map[string]string) error {
	host := strings.TrimSpace(params["smtp_host"])
	if host == "" {
		return fmt.Errorf("邮件插件缺少smtp_host")
	}
	port := 25
	if raw := params["smtp_port"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("邮件插件smtp_port无效: %s", raw)
		}
		port = n
	}
	from := strings.TrimSpace(params["from"])
	if from == "" {
		return fmt.Errorf("邮件插件缺少from")
	}
	var to []string
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("邮件插件缺少to")
	}

	e.host, e.port = host, port
	e.username, e.password = params["username"], params["password"]
	e.from, e.to = from, to
	e.ready = true
	log.Printf("✅ [EmailPlugin] 初始化完成: SMTP=%s, From=%s, To=%v", e.addr(), e.from, e.to)
	return nil
}

// Execute 发送一封事件通知邮件
func (e *EmailPlugin) Execute(data interface{}) error {
	if !e.ready {
		return fmt.Errorf("邮件插件未初始化")
	}
	pd, ok := data.(PluginData)
	if !ok {
		return fmt.Errorf("邮件插件收到未知数据类型: %T", data)
	}

	subject := subjectFor(pd)
	if err := e.send(subject, bodyFor(pd)); err != nil {
		log.Printf("❌ [EmailPlugin] 发送失败: Event=%s, RunID=%s, Error=%v", pd.Event, pd.RunID, err)
		return err
	}
	log.Printf("✅ [EmailPlugin] 已发送: Event=%s, Subject=%s", pd.Event, subject)
	return nil
}

var subjectLabels = map[TriggerEvent]string{
	EventWorkflowStarted:     "运行启动",
	EventWorkflowCompleted:   "运行完成",
	EventWorkflowFailed:      "运行失败",
	EventWorkflowPaused:      "运行暂停",
	EventWorkflowResumed:     "运行恢复",
	EventWorkflowCancelled:   "运行取消",
	EventWorkflowCompensated: "补偿结束",
	EventStepCompleted:       "步骤完成",
	EventStepFailed:          "步骤失败",
}

func subjectFor(pd PluginData) string {
	label, ok := subjectLabels[pd.Event]
	if !ok {
		return fmt.Sprintf("[工作流通知] %s", pd.Event)
	}
	subject := fmt.Sprintf("[%s] %s %s", label, pd.DefinitionCode, pd.RunID)
	if pd.StepID != "" {
		subject += " @ " + pd.StepID
	}
	return strings.Join(strings.Fields(subject), " ")
}

func bodyFor(pd PluginData) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("事件", string(pd.Event))
	line("状态", pd.Status)
	if pd.DefinitionCode != "" {
		line("工作流", fmt.Sprintf("%s v%d", pd.DefinitionCode, pd.VersionNumber))
	}
	line("运行ID", pd.RunID)
	line("步骤", pd.StepID)
	line("相关ID", pd.CorrelationID)
	line("错误", pd.Error)

	if len(pd.Data) > 0 {
		keys := make([]string, 0, len(pd.Data))
		for k := range pd.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n附加数据:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %v\n", k, pd.Data[k])
		}
	}
	return b.String()
}

func (e *EmailPlugin) addr() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// deliver 465端口走隐式TLS，其余端口明文连接，服务器支持时升级STARTTLS
func (e *EmailPlugin) deliver(subject, body string) error {
	var client *smtp.Client
	var err error
	if e.port == smtpsPort {
		conn, dialErr := tls.Dial("tcp", e.addr(), &tls.Config{ServerName: e.host})
		if dialErr != nil {
			return fmt.Errorf("连接SMTP服务器失败: %w", dialErr)
		}
		client, err = smtp.NewClient(conn, e.host)
	} else {
		client, err = smtp.Dial(e.addr())
	}
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if e.port != smtpsPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
				return fmt.Errorf("STARTTLS失败: %w", err)
			}
		}
	}
	if e.username != "" {
		if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人失败: %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("打开邮件数据流失败: %w", err)
	}
	if _, err := w.Write([]byte(e.message(subject, body))); err != nil {
		w.Close()
		return fmt.Errorf("写入邮件失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("提交邮件失败: %w", err)
	}
	return client.Quit()
}

func (e *EmailPlugin) message(subject, body string) string {
	headers := []string{
		"From: " + e.from,
		"To: " + strings.Join(e.to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
