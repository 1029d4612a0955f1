// Package ssf transmits Shared Signals security event tokens (SETs) to
// receivers.
//
// A transmission POSTs one compact signed token as application/secevent+jwt,
// retrying transient failures with exponential backoff and jitter. Receiver
// rejections come back as data; only failures without a receiver response
// are returned as errors.
//
// # Basic Usage
//
//	client, err := ssf.NewClient(
//		ssf.WithRetry(ssf.RetryConfig{
//			MaxAttempts: 5,
//			Backoff:     500 * time.Millisecond,
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Transmit(ctx, token, "https://receiver.example.com/events", &ssf.TransmitOptions{
//		AuthToken: receiverToken,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if result.Status == ssf.StatusFailed {
//		fmt.Printf("receiver rejected the event: %s (retryable=%v)\n", result.Error, result.Retryable)
//	}
//
// # Sending Events
//
// Send assembles the SET claims, signs them and delivers the token using the
// configured capabilities:
//
//	client, err := ssf.NewClient(
//		ssf.WithIssuer("https://idp.example.com"),
//		ssf.WithAddressResolver(ssf.StaticAddress("https://receiver.example.com/events")),
//		ssf.WithAuthResolver(ssf.StaticAuth(receiverToken)),
//		ssf.WithSigner(signer),
//	)
//
//	result, err := client.Send(ctx, ssf.Event{
//		Type:    ssf.EventSessionRevoked,
//		Subject: ssf.EmailSubject("user@example.com"),
//		Claims:  map[string]any{"event_timestamp": time.Now().Unix()},
//	}, nil)
//
// # Templates
//
// Resolve fills {$.path} placeholders from a job context. The runtime
// namespace provides {$.runtime.time.now} and {$.runtime.random.uuid}:
//
//	params, errs := client.Resolve(map[string]any{
//		"email": "{$.user.email}",
//	}, jobCtx, nil)
//
// # Error Handling
//
//	result, err := client.Transmit(ctx, token, url, nil)
//	switch {
//	case ssf.IsValidationError(err):
//		// malformed token or URL, nothing was sent
//	case errors.Is(err, ssf.ErrRetriesExhausted):
//		// the receiver never answered; reschedule
//	case err != nil:
//		log.Fatal(err)
//	}
package ssf
