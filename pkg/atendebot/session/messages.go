package session

// User-facing copy. Kept in one place so the texts can be audited together.
const (
	msgMainMenu = "🌿 *Bem-vindo à Chácara da Paz!* 🌞🍃\n\n" +
		"Como posso ajudar hoje?\n\n" +
		"1️⃣ *Consultar Disponibilidade de Data*\n" +
		"2️⃣ *Verificar Itens de Lazer*\n" +
		"3️⃣ *Falar com Atendente*\n\n" +
		"_Digite o número ou o nome da opção._"

	msgAskDate = "📅 Informe a *data de entrada* desejada.\nFormato: *Dia/Mês/Ano* (Ex: 10/12/2024)"

	msgAskDateShort = "📅 Informe a data (dd/mm/yyyy)"

	msgBadDate = "⚠️ Formato inválido. Use dia/mês/ano."

	msgCheckingDate = "📆 Verificando..."

	msgDateAvailable = "✅ *Data Disponível!* 🎉\nReserve em: https://chacaradapazv2.netlify.app/"

	msgDateConflict = "❌ *Indisponível* 😕\nReservado de %s até %s."

	msgDateLookupError = "❌ Erro ao consultar agenda."

	msgLeisureIntro = "🏊‍♂️ *Lazer e Estrutura*\n\n" +
		"Temos piscina, churrasqueira, campo e mais.\n\n" +
		"Deseja ver a lista completa?\n1️⃣ *Sim, mostrar tudo*\n2️⃣ *Voltar*"

	msgLeisureList = "✅ *Estrutura Completa:*\n" +
		"🎱 Pebolim e Sinuca\n🏓 Ping Pong\n⚽ Campo Futebol\n" +
		"🏊 Piscina Aquecida\n🍖 Churrasqueiras\n... e muito mais!" +
		"\n\nQuer ver os preços?\n1️⃣ *Sim*\n2️⃣ *Voltar*"

	msgPriceOptions = "💲 *Tabela de Preços e Pacotes*\n\n" +
		"Para ver valores e reservar, acesse nosso site:\n" +
		"👉 https://chacaradapazv2.netlify.app/\n\n" +
		"_Lá você consegue simular datas e fechar sua reserva!_ 😉"

	msgCallingAttendant = "✅ Chamando um atendente! Aguarde..."

	msgHandoffByAI = "Vou chamar um humano para te ajudar! 🏃💨"

	msgStillThere = "Você ainda está aí? O atendimento foi encerrado por inatividade."

	msgBotEnabled  = "🤖 Bot ativado."
	msgBotDisabled = "🤖 Bot desativado."

	msgAIRateLimited = "😅 Estou recebendo muitas perguntas agora. Tente novamente em alguns instantes."

	msgAIFiltered = "🙏 Não consigo responder a isso. Posso ajudar com informações sobre a chácara?"

	msgAIUnavailable = "⚙️ Nosso assistente está indisponível no momento. Tente novamente em breve."

	msgAIConfused = "Estou meio confuso agora... aqui está o menu para ajudar:"

	msgCheckingReservations = "🔎 Verificando reservas manualmente..."

	msgNoGroups = "Nenhum grupo encontrado."
)
