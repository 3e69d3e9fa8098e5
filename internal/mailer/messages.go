package mailer

import "fmt"

type message struct {
	Subject string
	Text    string
}

func welcomeMessage(name string) message {
	return message{
		Subject: "Welcome to Task manager",
		Text:    fmt.Sprintf("Hello, %s! Thank you for signing up.", name),
	}
}

func farewellMessage(name string) message {
	return message{
		Subject: "Please come back",
		Text: fmt.Sprintf("Hello, %s! I am sad that you have decided to leave. "+
			"Is there something we can do to convince you to stay? Yours truly, Task Manager", name),
	}
}
