// Package voiceagent implements the real-time voice pipeline used by the
// health-journaling apps: microphone capture with segment rotation, a
// duplex websocket protocol client for the conversational voice service,
// and strictly serial playback of synthesized responses.
//
// # Overview
//
// The pipeline is built from small components coordinated by a
// VoiceSession:
//
//   - Emitter: synchronous publish/subscribe decoupling producers from
//     consumers
//   - AudioStreamer: capture lifecycle with periodic chunking and session
//     rotation
//   - Connection: the persistent duplex websocket, with an in-order
//     single-flight inbound pump
//   - Router: inbound frame dispatch by type discriminant
//   - AudioReceiver: the playback sequencer (one item playing at a time)
//
// # Quick Start
//
//	config := voiceagent.NewConfig()
//	audioConfig := voiceagent.NewAudioConfig()
//	log := voiceagent.NewLogger(nil)
//
//	recorder, err := voiceagent.NewPortAudioRecorder(audioConfig, log)
//	if err != nil {
//		panic(err)
//	}
//	defer recorder.Close()
//	player := voiceagent.NewPortAudioPlayer(audioConfig, log)
//
//	session := voiceagent.NewVoiceSession(config, audioConfig, recorder, player, log)
//	session.Events().Subscribe(voiceagent.EventAgentResponse, func(payload any) {
//		fmt.Println("agent:", payload)
//	})
//
//	if err := session.Start(); err != nil {
//		panic(err)
//	}
//	defer session.Cleanup()
//
// # Configuration
//
// Config and AudioConfig load defaults from VOICEAGENT_* environment
// variables (a .env file is honored). The audio format is fixed at 16 kHz
// mono 16-bit PCM to match the wire protocol.
//
// Capture and playback devices sit behind the Recorder and Player
// interfaces; PortAudioRecorder and PortAudioPlayer are the production
// implementations, and tests inject fakes.
package voiceagent
